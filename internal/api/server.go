// Package api serves generated datasets over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/fraudgen/internal/domain"
	"github.com/opensource-finance/fraudgen/internal/metrics"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. m may be nil, which disables
// /metrics and request metrics.
func NewServer(cfg domain.ServerConfig, deps Deps, m *metrics.Metrics, version string) *Server {
	handler := NewHandler(deps, cfg, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))
	if m != nil {
		router.Use(MetricsMiddleware(m))
		router.Method(http.MethodGet, "/metrics", m.Handler())
	}

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/datasets", func(r chi.Router) {
		r.Post("/", handler.CreateDataset)
		r.Get("/", handler.ListDatasets)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetDataset)
			r.Get("/transactions/{txId}", handler.GetTransaction)
			r.Get("/cards/{cardId}/transactions", handler.ListCardTransactions)
			r.Get("/cards/{cardId}/velocity", handler.GetCardVelocity)
			r.Get("/alerts", handler.ListAlerts)
			r.Get("/points/{userId}", handler.GetPoints)
			r.Get("/signals/{userId}", handler.GetSignals)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
