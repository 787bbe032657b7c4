package api

import (
	"net/http"
	"strings"
)

// handleHealth answers liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleQueueStatus reports the current queue depth.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, err := s.queue.Size(r.Context())
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"depth": n})
}

// handleTaskActivity serves GET /api/v1/tasks/{id}/activity from the
// Postgres lifecycle log.
func (s *Server) handleTaskActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.activity == nil {
		s.respondError(w, http.StatusNotFound, "activity log not configured")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	taskID := strings.TrimSuffix(rest, "/activity")
	if taskID == "" || taskID == rest {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}

	rows, err := s.activity.History(r.Context(), taskID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read activity")
		return
	}
	if len(rows) == 0 {
		s.respondError(w, http.StatusNotFound, "unknown task")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"task_id": taskID, "activity": rows})
}
