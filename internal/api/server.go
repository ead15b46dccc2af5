// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/datasets for publication-to-dataset resolution.
//   - GET /api/jobs and /api/jobs/{id}/items for backfill progress.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/linker"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/loader"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/metrics"
)

// Server wires HTTP handlers to the linker chain, loader chain, and job store.
type Server struct {
	router chi.Router
	linker linker.Linker
	loader loader.Loader
	jobs   geo.JobStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(l linker.Linker, ld loader.Loader, jobs geo.JobStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		linker: l,
		loader: ld,
		jobs:   jobs,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/datasets", s.getDatasets)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/items", s.listJobItems)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}
