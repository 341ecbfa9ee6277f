package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kidlearn/tutor/internal/domain"
)

var errConnClosed = errors.New("websocket connection closed")

// connection is one client socket. Only writePump writes to conn.
type connection struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{
		id:   uuid.New().String(),
		conn: ws,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// close stops the writer and unblocks the reader. Safe to call more than once.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// sendJSON queues v for the writer. It blocks while the queue is full.
func (c *connection) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	}
}

// turnSink delivers one turn's events to the connection.
type turnSink struct {
	conn    *connection
	started bool
}

func (s *turnSink) Send(ev domain.Event) error {
	s.started = true
	return s.conn.sendJSON(ev)
}
