// Package http provides the HTTP servers for the tutor.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kidlearn/tutor/internal/auth"
	"github.com/kidlearn/tutor/internal/config"
	"github.com/kidlearn/tutor/internal/metrics"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/internal/service"
	v1 "github.com/kidlearn/tutor/internal/transport/http/v1"
	"github.com/kidlearn/tutor/internal/transport/ws"
)

// NewExternalServer creates the client-facing server: the tutor REST and SSE
// routes and the WebSocket chat endpoint.
func NewExternalServer(svc *service.Service, verifier *auth.Verifier, cfg *config.Config, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(requestContext)
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, logger)
	wsServer := ws.NewServer(svc, cfg, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e, verifier.Middleware())
	e.GET("/tutor/ws", wsServer.HandleWebSocket, verifier.Middleware(auth.FromHeader, auth.FromQuery("token")))

	return e
}

// NewInternalServer creates the operator-facing server with health and metrics.
func NewInternalServer(svc *service.Service, m *metrics.Metrics, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		if err := svc.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": "0.1.0",
		})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	return e
}

// requestContext copies the echo request id into the request context so
// service logs carry it.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		if id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(observability.WithRequestID(req.Context(), id)))
		}
		return next(c)
	}
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = observability.Logger()
	}
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.RequestID != "" {
				attrs = append(attrs, slog.String("request_id", v.RequestID))
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(context.Background(), level, "request", attrs...)
			return nil
		},
	})
}
