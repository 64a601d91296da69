package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance-kiosk/internal/web/handlers"
	"github.com/kozaktomas/attendance-kiosk/internal/web/middleware"
	"github.com/kozaktomas/attendance-kiosk/internal/web/static"
)

func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.router.Get("/api/health", handlers.HealthCheck)

	s.router.Route("/api/kiosk", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.Token))

		r.Get("/", s.kiosk.Get)
		r.Post("/start", s.kiosk.Start)
		r.Post("/stop", s.kiosk.Stop)
		r.Get("/events", s.kiosk.Events)
		r.Get("/ws", s.kiosk.WS)
	})

	dashboard, err := static.Dashboard()
	if err != nil {
		s.logger.Error("dashboard page unavailable", "error", err)
		return
	}
	s.router.Handle("/*", http.FileServerFS(dashboard))
}
