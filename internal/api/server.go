// Package api exposes the HTTP interface for the crawl coordinator.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-coordinator/internal/config"
	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
	sha256hash "github.com/JakeFAU/crawl-coordinator/internal/hash/sha256"
	"github.com/JakeFAU/crawl-coordinator/internal/metrics"
)

// DefaultRunID is used when a request names no run, matching the worker's
// default.
const DefaultRunID = "default"

// Server wires HTTP handlers to the coordinator and the blob store.
type Server struct {
	router chi.Router
	coord  *coordinator.Coordinator
	blobs  coordinator.BlobStore
	hasher coordinator.Hasher
	logger *zap.Logger
	cfg    config.Config
}

// NewServer constructs a Server with middleware and routes. blobs may be
// nil, in which case content storage and retrieval are disabled.
func NewServer(coord *coordinator.Coordinator, blobs coordinator.BlobStore, logger *zap.Logger, cfg config.Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		coord:  coord,
		blobs:  blobs,
		hasher: sha256hash.New(),
		logger: logger,
		cfg:    cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(maxBodyMiddleware(int64(cfg.Server.MaxRequestBodyKiB) << 10))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(s.bearerAuthMiddleware(cfg.Auth.APIKey))
		}

		r.Post("/seed", s.seed)
		r.Post("/configure", s.configure)
		r.Post("/start", s.start)
		r.Post("/pause", s.pause)
		r.Post("/resume", s.resume)
		r.Post("/cancel", s.cancel)
		r.Post("/reset", s.reset)
		r.Post("/request-work", s.requestWork)
		r.Post("/report-result", s.reportResult)
		r.Post("/on-cron", s.onCron)

		r.Get("/stats", s.stats)
		r.Get("/status", s.status)
		r.Get("/errors", s.errors)
		r.Get("/pages", s.pages)
		r.Get("/content", s.content)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// Stores are checked at startup; nothing to probe per request.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
