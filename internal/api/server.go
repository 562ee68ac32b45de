package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
	cancel  context.CancelFunc
}

// NewServer wires the routes and middleware around handler.
func NewServer(cfg domain.ServerConfig, handler *Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	router := chi.NewRouter()

	router.Use(CORSMiddleware(cfg.CORSOrigins))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// No tenant required
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		if cfg.RateLimit > 0 {
			r.Use(NewTenantRateLimiter(ctx, cfg.RateLimit, cfg.RateBurst).Middleware)
		}

		r.Post("/underwriting/evaluate", handler.Evaluate)

		r.Get("/evaluations", handler.ListEvaluations)
		r.Get("/evaluations/{id}", handler.GetEvaluation)

		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Get("/rules/{id}", handler.GetRule)
		r.Patch("/rules/{id}/toggle", handler.ToggleRule)

		r.Get("/stages", handler.ListStages)
		r.Post("/stages", handler.CreateStage)
		r.Patch("/stages/{id}/toggle", handler.ToggleStage)

		r.Get("/risk-bands", handler.ListRiskBands)
		r.Post("/risk-bands", handler.CreateRiskBand)
		r.Patch("/risk-bands/{id}/toggle", handler.ToggleRiskBand)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
		cancel:  cancel,
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
	s.cancel()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
