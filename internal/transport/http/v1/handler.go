// Package v1 provides the tutor REST and SSE handlers.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/internal/service"
)

// Handler handles tutor HTTP requests.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = observability.Logger()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the tutor routes behind the given auth middleware.
func (h *Handler) RegisterRoutes(e *echo.Echo, authMW ...echo.MiddlewareFunc) {
	g := e.Group("/tutor", authMW...)

	g.POST("/chat", h.Chat)
	g.GET("/sessions", h.ListSessions)
	g.GET("/sessions/:id", h.GetSessionMessages)
}

// errorJSON writes a synchronous error response. Server-side failures use
// fallback instead of the error's public message.
func errorJSON(c echo.Context, err error, fallback string) error {
	status := domain.HTTPStatus(err)
	msg := domain.PublicMessage(err)
	if status >= http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	return c.JSON(status, map[string]string{"error": msg})
}
