package webui

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/skilldiff"
	"github.com/jingkaihe/skillhub/pkg/submission"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

// Views accepted by GET /api/skills.
const (
	ViewMarketplace = "marketplace"
	ViewAdmin       = "admin"
)

// ListResponse is the body of GET /api/skills.
type ListResponse struct {
	Skills []skills.Skill   `json:"skills"`
	Total  int              `json:"total"`
	Counts *registry.Counts `json:"counts,omitempty"`
}

// handleListSkills handles GET /api/skills. The marketplace view only lists
// approved skills; the admin view filters by status and carries counts.
func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var query registry.Query
	switch view := q.Get("view"); view {
	case "", ViewMarketplace:
		sort := registry.SortPopular
		if raw := q.Get("sort"); raw != "" {
			parsed, err := registry.ParseSort(raw)
			if err != nil {
				s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), err)
				return
			}
			sort = parsed
		}
		query = registry.MarketplaceQuery(q.Get("q"), q.Get("category"), q.Get("tag"), sort)
	case ViewAdmin:
		query = registry.AdminQuery(q.Get("status"))
	default:
		s.writeErrorResponse(w, r, http.StatusBadRequest, "unknown view "+view, nil)
		return
	}

	list, err := s.registry.List(query)
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	resp := ListResponse{Skills: list, Total: len(list)}
	if q.Get("view") == ViewAdmin {
		counts := s.registry.Counts()
		resp.Counts = &counts
	}
	s.writeJSONResponse(w, r, http.StatusOK, resp)
}

// handleSubmitSkill handles POST /api/skills.
func (s *Server) handleSubmitSkill(w http.ResponseWriter, r *http.Request) {
	var req submission.Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	draft, err := req.Draft(s.registry.Schema())
	if err != nil {
		var ve *submission.ValidationError
		if errors.As(err, &ve) {
			s.writeJSONResponse(w, r, http.StatusBadRequest, errorResponse{
				Error:  err.Error(),
				Status: http.StatusBadRequest,
				Fields: ve.Fields,
			})
			return
		}
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "failed to build submission", err)
		return
	}

	skill := s.registry.Add(r.Context(), draft)
	s.writeJSONResponse(w, r, http.StatusCreated, skill)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (skills.Skill, bool) {
	id := mux.Vars(r)["id"]
	skill, ok := s.registry.Get(id)
	if !ok {
		s.writeErrorResponse(w, r, http.StatusNotFound, "skill not found", nil)
	}
	return skill, ok
}

// handleGetSkill handles GET /api/skills/{id}.
func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	skill, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSONResponse(w, r, http.StatusOK, skill)
}

// StatusRequest is the body of POST /api/skills/{id}/status. A null or
// absent notes field leaves the existing admin notes untouched.
type StatusRequest struct {
	Status skills.Status `json:"status"`
	Notes  *string       `json:"notes,omitempty"`
}

// handleUpdateStatus handles POST /api/skills/{id}/status.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if s.registry.Role() != skills.RoleAdmin {
		s.writeErrorResponse(w, r, http.StatusForbidden, "admin role required", nil)
		return
	}

	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	if !req.Status.Valid() {
		s.writeErrorResponse(w, r, http.StatusBadRequest, "invalid status "+string(req.Status), nil)
		return
	}

	id := mux.Vars(r)["id"]
	if !s.registry.UpdateStatus(r.Context(), id, req.Status, req.Notes) {
		s.writeErrorResponse(w, r, http.StatusNotFound, "skill not found", nil)
		return
	}

	skill, _ := s.registry.Get(id)
	s.writeJSONResponse(w, r, http.StatusOK, skill)
}

// handleDownload handles POST /api/skills/{id}/download.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.registry.IncrementDownloads(r.Context(), id) {
		s.writeErrorResponse(w, r, http.StatusNotFound, "skill not found", nil)
		return
	}
	skill, _ := s.registry.Get(id)
	s.writeJSONResponse(w, r, http.StatusOK, skill)
}

// handleSkillDocument handles GET /api/skills/{id}/skill.md.
func (s *Server) handleSkillDocument(w http.ResponseWriter, r *http.Request) {
	skill, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="SKILL.md"`)
	if _, err := w.Write([]byte(skilldiff.Document(skill))); err != nil {
		logger.G(r.Context()).WithError(err).Debug("failed to write skill document")
	}
}

// handleDiff handles GET /api/skills/{id}/diff?against={otherID}.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	against := r.URL.Query().Get("against")
	if against == "" {
		s.writeErrorResponse(w, r, http.StatusBadRequest, "against is required", nil)
		return
	}
	base, ok := s.registry.Get(against)
	if !ok {
		s.writeErrorResponse(w, r, http.StatusNotFound, "skill not found: "+against, nil)
		return
	}
	skill, ok := s.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	if _, err := w.Write([]byte(skilldiff.Unified(base, skill))); err != nil {
		logger.G(r.Context()).WithError(err).Debug("failed to write diff")
	}
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, r, http.StatusOK, s.registry.Counts())
}

// RoleBody is the body of GET and PUT /api/role.
type RoleBody struct {
	Role skills.Role `json:"role"`
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, r, http.StatusOK, RoleBody{Role: s.registry.Role()})
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var body RoleBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	role, ok := skills.ParseRole(string(body.Role))
	if !ok {
		s.writeErrorResponse(w, r, http.StatusBadRequest, "invalid role "+string(body.Role), nil)
		return
	}
	s.registry.SetRole(r.Context(), role)
	s.writeJSONResponse(w, r, http.StatusOK, RoleBody{Role: role})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, r, http.StatusOK, skills.Categories)
}

func (s *Server) handleDraftSchema(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, r, http.StatusOK, submission.Schema())
}
