// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"magnet/internal/config"
	"magnet/internal/server/handlers"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server. A nil event source disables the
// websocket trend feed.
func NewServer(
	cfg config.ServerConfig,
	service handlers.ResearchService,
	eventSource handlers.EventSource,
	eventsTopic string,
	logger *slog.Logger,
) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	researchHandler := handlers.NewResearchHandler(service, cfg.MaxBatchItems, logger)

	// Routes
	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// API version
		r.Route("/v1", func(r chi.Router) {
			r.Post("/score", researchHandler.Score)
			r.Post("/trends/run", researchHandler.RunTrends)

			// Runs API
			r.Route("/runs", func(r chi.Router) {
				r.Post("/", researchHandler.CreateRun)
				r.Get("/", researchHandler.ListRuns)
				r.Get("/latest", researchHandler.LatestRun)
				r.Get("/{id}", researchHandler.GetRun)
				r.Get("/{id}/export", researchHandler.ExportRun)
			})
		})
	})

	// WebSocket endpoint for the live trend feed
	if eventSource != nil {
		router.Get("/ws/trends", handlers.TrendWebSocketHandler(
			eventSource,
			eventsTopic,
			handlers.DefaultWebSocketConfig(),
			logger,
		))
	}

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
