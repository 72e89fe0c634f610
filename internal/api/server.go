package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-health/triage/internal/domain"
	"github.com/opensource-health/triage/internal/velocity"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. limiter may be nil.
func NewServer(cfg domain.ServerConfig, deps Deps, limiter *velocity.Limiter) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Submission endpoints are velocity limited per client.
	router.Group(func(r chi.Router) {
		r.Use(VelocityMiddleware(limiter))
		r.Post("/process", handler.Process)
		r.Post("/api/process", handler.Process)
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/persentase-penyakit", handler.OverallPercentages)
		r.Get("/persentase-penyakit/{penyakit}", handler.DiseasePercentage)

		r.Get("/detections", handler.QueryDetections)

		r.Get("/lexicon", handler.ListLexicon)
		r.Post("/lexicon/reload", handler.ReloadLexicon)

		r.Get("/stats/live", handler.LiveStats)

		r.Post("/sentiment", handler.Sentiment)
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

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
