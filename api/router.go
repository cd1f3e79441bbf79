// Package api exposes the star service over HTTP with chi.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable. *db.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig wires the router. Only Service and Logger are required.
type RouterConfig struct {
	Service StarService
	Logger  *zap.Logger

	// DB backs /ready. Without it /ready always reports ready.
	DB Pinger

	// Metrics is served at /metrics and fed by the request logger.
	Metrics interface {
		RequestRecorder
		Handler() http.Handler
	}

	CORSEnabled bool
	CORSOrigins []string
}

// NewRouter builds the HTTP handler of the service.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var rec RequestRecorder
	if cfg.Metrics != nil {
		rec = cfg.Metrics
	}

	router := chi.NewRouter()
	router.Use(RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(Logger(logger, rec))
	router.Use(chimiddleware.Recoverer)

	if cfg.CORSEnabled {
		origins := cfg.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
	}

	router.Get("/health", healthCheck)
	router.Get("/ready", readinessCheck(cfg.DB, logger))
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	stars := NewStarHandler(cfg.Service, logger)
	router.Route("/api/stars", stars.Routes)

	return router
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readinessCheck(p Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
