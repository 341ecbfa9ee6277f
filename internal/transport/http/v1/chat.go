package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kidlearn/tutor/internal/auth"
	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/internal/service"
)

// MsgInvalidBody is returned when the request body is not a chat request.
const MsgInvalidBody = "Invalid request body"

// Chat runs one tutor turn and streams it as server-sent events.
// POST /tutor/chat
func (h *Handler) Chat(c echo.Context) error {
	ctx := c.Request().Context()
	principal, _ := auth.PrincipalFrom(c)

	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": MsgInvalidBody})
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
	}

	sink := &sseSink{res: c.Response(), flusher: flusher}
	_, err := h.service.Chat(ctx, principal, req, sink)
	if err == nil {
		return nil
	}
	// Once headers are out the stream already carried the error event.
	if sink.committed || domain.KindOf(err) == domain.KindCancelled {
		return nil
	}
	if domain.HTTPStatus(err) >= http.StatusInternalServerError {
		observability.FromContext(ctx, h.logger).Error("tutor chat error", "user_id", principal.UserID, "error", err)
	}
	return errorJSON(c, err, "")
}

// sseSink writes events as "data: <json>" frames. Headers are committed with
// the first event so errors before it can still be plain JSON responses.
type sseSink struct {
	res       *echo.Response
	flusher   http.Flusher
	committed bool
}

var _ service.EventSink = (*sseSink)(nil)

func (s *sseSink) Send(ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if !s.committed {
		s.res.Header().Set("Content-Type", "text/event-stream")
		s.res.Header().Set("Cache-Control", "no-cache")
		s.res.Header().Set("Connection", "keep-alive")
		s.res.WriteHeader(http.StatusOK)
		s.committed = true
	}
	if _, err := fmt.Fprintf(s.res, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
