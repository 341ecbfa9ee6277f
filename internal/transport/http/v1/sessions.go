package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kidlearn/tutor/internal/auth"
	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/observability"
)

// ListSessions lists the caller's sessions, newest first.
// GET /tutor/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := auth.PrincipalFrom(c)

	sessions, err := h.service.ListSessions(ctx, principal)
	if err != nil {
		observability.FromContext(ctx, h.logger).Error("list sessions failed", "user_id", principal.UserID, "error", err)
		return errorJSON(c, err, domain.MsgInternalError)
	}
	return c.JSON(http.StatusOK, sessions)
}

// GetSessionMessages replays a session's transcript.
// GET /tutor/sessions/:id
func (h *Handler) GetSessionMessages(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := auth.PrincipalFrom(c)
	sessionID := c.Param("id")

	messages, err := h.service.GetSessionMessages(ctx, principal, sessionID)
	if err != nil {
		if domain.KindOf(err) != domain.KindNotFound {
			observability.FromContext(ctx, h.logger).Error("get session failed",
				"user_id", principal.UserID, "session_id", sessionID, "error", err)
		}
		return errorJSON(c, err, domain.MsgInternalError)
	}
	return c.JSON(http.StatusOK, messages)
}
