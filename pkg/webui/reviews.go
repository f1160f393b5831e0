package webui

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jingkaihe/skillhub/pkg/reviewlog"
)

const maxActivityLimit = 500

// handleHistory handles GET /api/skills/{id}/history. The skill may have
// been removed by a reset and still have history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.reviews == nil {
		s.writeErrorResponse(w, r, http.StatusNotImplemented, "review log is not configured", nil)
		return
	}

	id := mux.Vars(r)["id"]
	entries, err := s.reviews.History(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "failed to load history", err)
		return
	}
	s.writeJSONResponse(w, r, http.StatusOK, map[string]any{
		"skillId": id,
		"entries": nonNilEntries(entries),
	})
}

// handleActivity handles GET /api/activity?limit=N, newest first, along
// with the total number of recorded events.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.reviews == nil {
		s.writeErrorResponse(w, r, http.StatusNotImplemented, "review log is not configured", nil)
		return
	}

	limit := reviewlog.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxActivityLimit {
			s.writeErrorResponse(w, r, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxActivityLimit), err)
			return
		}
		limit = n
	}

	entries, err := s.reviews.Recent(r.Context(), limit)
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "failed to load activity", err)
		return
	}
	total, err := s.reviews.Count(r.Context())
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusInternalServerError, "failed to load activity", err)
		return
	}
	s.writeJSONResponse(w, r, http.StatusOK, map[string]any{
		"total":   total,
		"entries": nonNilEntries(entries),
	})
}

func nonNilEntries(entries []reviewlog.Entry) []reviewlog.Entry {
	if entries == nil {
		return []reviewlog.Entry{}
	}
	return entries
}
