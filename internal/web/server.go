// Package web is the HTTP surface: the Spotify OAuth connect flow and the
// JSON API the control-panel UI reads.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/musicsynk/musicsynk/internal/config"
	"github.com/musicsynk/musicsynk/internal/provider"
	"github.com/musicsynk/musicsynk/internal/spotify"
	"github.com/musicsynk/musicsynk/internal/vault"
)

// Server is the control-panel HTTP server.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *log.Logger
}

// NewServer creates the HTTP server. oauth and credentials are nil in mock
// mode; the connect flow is then not routed.
func NewServer(cfg *config.Config, p provider.Provider, oauth *spotify.OAuth, credentials *vault.Vault, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	handlers := NewHandlers(p, oauth, credentials, logger)

	router := chi.NewRouter()
	s := &Server{
		router:   router,
		handlers: handlers,
		logger:   logger,
	}

	s.setupMiddleware()
	s.setupRoutes(oauth != nil)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes(withAuthFlow bool) {
	if withAuthFlow {
		s.router.Get("/auth/spotify", s.handlers.SpotifyConnect)
		s.router.Get("/auth/spotify/callback", s.handlers.SpotifyCallback)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/setup/status", s.handlers.SetupStatus)
		r.Post("/setup/initial-scan", s.handlers.InitialScan)
		r.Post("/sync/trigger", s.handlers.TriggerSync)
		r.Get("/runs", s.handlers.ListRuns)
		r.Get("/runs/{id}", s.handlers.GetRun)
		r.Get("/settings", s.handlers.ListSettings)
		r.Put("/settings", s.handlers.UpdateSettings)
		r.Post("/auth/spotify/logout", s.handlers.SpotifyLogout)
		r.Get("/app-shell", s.handlers.AppShell)
	})
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.logger.Info("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
