package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/vanillastudio/console/internal/language"
	"github.com/vanillastudio/console/internal/manager"
)

// Server exposes the execution core to the editor shell: submit a run,
// cancel it, poll its state, and stream console output.
type Server struct {
	manager    *manager.Manager
	registry   *language.Registry
	logger     *slog.Logger
	httpServer *http.Server
}

func New(m *manager.Manager, registry *language.Registry, logger *slog.Logger) *Server {
	s := &Server{
		manager:  m,
		registry: registry,
		logger:   logger,
	}
	s.httpServer = &http.Server{Handler: s.Handler()}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.submitRun)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{jobID}", s.getRun)
		r.Post("/runs/{jobID}/cancel", s.cancelRun)
		r.Get("/languages", s.listLanguages)
		r.Get("/stream", s.stream)
	})

	return r
}

func (s *Server) Start(port string) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	s.logger.Info("starting HTTP server", "port", port)
	if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	_ = s.httpServer.Shutdown(ctx)
}
