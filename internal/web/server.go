// Package web serves the live attendance dashboard.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/scan"
	"github.com/kozaktomas/attendance-kiosk/internal/web/handlers"
	"github.com/kozaktomas/attendance-kiosk/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	kiosk      *handlers.KioskHandler
	scheduler  *scan.Scheduler
	logger     *slog.Logger
	cancel     context.CancelFunc
}

// NewServer creates a new web server driving scheduler.
func NewServer(cfg *config.Config, scheduler *scan.Scheduler, port int, host string, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:    cfg,
		router:    r,
		kiosk:     handlers.NewKioskHandler(ctx, cfg, scheduler, logger),
		scheduler: scheduler,
		logger:    logger,
		cancel:    cancel,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No write timeout: event streams stay open.
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops the capture run, closes event streams and shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	s.scheduler.Stop()
	s.cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Autostart starts scanning classID as if the dashboard had requested it.
func (s *Server) Autostart(classID int64) error {
	return s.kiosk.StartRun(classID)
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
