package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-homesim/internal/audit"
)

// handleListDispatches pages through the dispatch audit log.
//
// Query parameters: device_id, source, success (true/false), limit, offset.
func (s *Server) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "dispatch log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID: q.Get("device_id"),
		Source:   q.Get("source"),
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "success must be true or false")
			return
		}
		filter.Success = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing dispatches failed", "error", err)
		writeInternalError(w, "failed to list dispatches")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
