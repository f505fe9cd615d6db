package httpapi

import "net/http"

// handleInternalMatching triggers one dispatch pass. It exists for
// schedulers that prefer driving matching externally over the in-process
// ticker.
func (s *Server) handleInternalMatching(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Engine.RunOnce(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
