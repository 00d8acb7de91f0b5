package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/middleware"
)

// RegisterRoutes adds the routes that do not belong to a module.
func (s *Server) RegisterRoutes() {
	s.E.GET("/health", s.health)
}

// health pings the backend: 200 when it answers, 503 otherwise.
func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := s.Backend.Ping(ctx); err != nil {
		middleware.FromContext(ctx).Warn("Health check failed", "event", "health_check_failure", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
