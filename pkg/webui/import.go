package webui

import (
	"net/http"
	"strings"

	"github.com/jingkaihe/skillhub/pkg/importer"
	"github.com/jingkaihe/skillhub/pkg/submission"
)

// ImportRequest is the body of POST /api/import.
type ImportRequest struct {
	URL string `json:"url"`
}

// ImportResponse carries the fetched skill and the upload form it prefills.
type ImportResponse struct {
	Result *importer.Result      `json:"result"`
	Form   submission.UploadForm `json:"form"`
}

// handleImport handles POST /api/import. Every fetch failure maps to one
// generic message; the cause is only logged.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		s.writeErrorResponse(w, r, http.StatusNotImplemented, "import is not configured", nil)
		return
	}

	var req ImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErrorResponse(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeErrorResponse(w, r, http.StatusBadRequest, "url is required", nil)
		return
	}

	res, err := s.importer.Import(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		s.writeErrorResponse(w, r, http.StatusBadGateway, importer.FailureMessage, err)
		return
	}
	s.writeJSONResponse(w, r, http.StatusOK, ImportResponse{Result: res, Form: res.Form()})
}
