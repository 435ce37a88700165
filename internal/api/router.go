package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/printcast/internal/journal"
	"github.com/nerrad567/printcast/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Get("/{id}/transitions", s.handleJobTransitions)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	r.Handle("/*", panel.Handler(s.cfg.PanelDir))

	return r
}

// handleHealth answers 200 when every dependency check passes and 503
// otherwise; the body lists each check either way.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks, healthy := s.runChecks(r.Context())
	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	body := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if checks != nil {
		body["checks"] = checks
	}
	writeJSON(w, code, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := s.status.Status()
	report.Health, _ = s.runChecks(r.Context())
	writeJSON(w, http.StatusOK, report)
}

// handleListJobs returns recent jobs, newest first. ?limit= caps the list.
// With the journal disabled the list is always empty.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs := []journal.Job{}
	if s.jobs != nil {
		var err error
		jobs, err = s.jobs.RecentJobs(r.Context(), limit)
		if err != nil {
			s.logger.Error("listing jobs failed", "error", err)
			writeInternalError(w, "failed to read print journal")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) handleJobTransitions(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeNotFound(w, "print journal is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	transitions, err := s.jobs.Transitions(r.Context(), id)
	if err != nil {
		s.logger.Error("listing transitions failed", "job", id, "error", err)
		writeInternalError(w, "failed to read print journal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":      id,
		"transitions": transitions,
	})
}
