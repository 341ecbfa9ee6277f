// Package ws provides the WebSocket chat transport.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/kidlearn/tutor/internal/auth"
	"github.com/kidlearn/tutor/internal/config"
	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/internal/service"
)

// Error texts sent as error events for frames that never start a turn.
const (
	MsgInvalidFrame = "Invalid request body"
	MsgQueueFull    = "Too many messages waiting"
)

// maxPendingTurns bounds the frames queued behind the running turn.
const maxPendingTurns = 4

// Server handles WebSocket chat connections.
type Server struct {
	service  *service.Service
	cfg      *config.Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(svc *service.Service, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = observability.Logger()
	}
	return &Server{
		service: svc,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// CORS is open on the REST routes as well.
				return true
			},
		},
	}
}

// client is the per-connection state shared by the reader and the turn worker.
type client struct {
	conn      *connection
	principal domain.Principal
	logger    *slog.Logger
	requests  chan domain.ChatRequest
}

// HandleWebSocket upgrades the request and serves chat turns until the client
// goes away. Each inbound frame is a chat request; turns run one at a time in
// arrival order.
func (s *Server) HandleWebSocket(c echo.Context) error {
	principal, _ := auth.PrincipalFrom(c)
	logger := observability.FromContext(c.Request().Context(), s.logger)

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already answered the request
		logger.Warn("failed to upgrade websocket", "error", err)
		return nil
	}

	conn := newConnection(ws)
	cl := &client{
		conn:      conn,
		principal: principal,
		logger:    logger.With("conn_id", conn.id, "user_id", principal.UserID),
		requests:  make(chan domain.ChatRequest, maxPendingTurns),
	}
	ws.SetReadLimit(s.cfg.WSMaxMessageSize)

	ctx, cancel := context.WithCancel(c.Request().Context())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn)
	}()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.turnWorker(ctx, cl)
	}()

	cl.logger.Info("websocket connected")
	s.readPump(cl)

	// The client is gone: abandon the running turn and anything queued.
	cancel()
	<-workerDone
	conn.close()
	<-writerDone
	cl.logger.Info("websocket disconnected")
	return nil
}

// readPump reads frames until the connection fails.
func (s *Server) readPump(cl *client) {
	conn := cl.conn
	conn.conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				cl.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		s.handleMessage(cl, message)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (s *Server) writePump(conn *connection) {
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer func() {
		ticker.Stop()
		conn.close()
	}()

	for {
		select {
		case message := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write websocket message", "conn_id", conn.id, "error", err)
				return
			}

		case <-ticker.C:
			conn.conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.done:
			return
		}
	}
}

// handleMessage queues one inbound frame for the turn worker.
func (s *Server) handleMessage(cl *client, data []byte) {
	var req domain.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(cl, MsgInvalidFrame)
		return
	}
	select {
	case cl.requests <- req:
	default:
		s.sendError(cl, MsgQueueFull)
	}
}

// turnWorker runs queued turns until ctx is cancelled.
func (s *Server) turnWorker(ctx context.Context, cl *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-cl.requests:
			if ctx.Err() != nil {
				return
			}
			s.runTurn(ctx, cl, req)
		}
	}
}

func (s *Server) runTurn(ctx context.Context, cl *client, req domain.ChatRequest) {
	sink := &turnSink{conn: cl.conn}
	_, err := s.service.Chat(ctx, cl.principal, req, sink)
	if err == nil || sink.started || domain.KindOf(err) == domain.KindCancelled {
		return
	}
	if domain.HTTPStatus(err) >= http.StatusInternalServerError {
		cl.logger.Error("tutor chat error", "error", err)
	}
	s.sendError(cl, domain.PublicMessage(err))
}

func (s *Server) sendError(cl *client, msg string) {
	ev := domain.Event{Type: domain.EventTypeError, Error: msg}
	if err := cl.conn.sendJSON(ev); err != nil {
		cl.logger.Debug("failed to send error event", "error", err)
	}
}
