package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kidlearn/tutor/internal/adapter/llm"
	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/metrics"
)

var (
	// ErrClientGone wraps any failure to write to the client connection.
	ErrClientGone = errors.New("client connection closed")
	// ErrEventOrder is returned when an event would break the turn's event order.
	ErrEventOrder = errors.New("event out of order")
)

// EventSink delivers wire events to one client connection.
type EventSink interface {
	Send(ev domain.Event) error
}

type writerState int

const (
	writerIdle writerState = iota
	writerStreaming
	writerClosed
)

// eventWriter enforces the order session, content*, then exactly one of done or error.
type eventWriter struct {
	sink  EventSink
	state writerState
}

func newEventWriter(sink EventSink) *eventWriter {
	return &eventWriter{sink: sink}
}

func (w *eventWriter) Session(sessionID string) error {
	return w.emit(domain.SessionEvent(sessionID))
}

func (w *eventWriter) Content(fragment string) error {
	return w.emit(domain.ContentEvent(fragment))
}

func (w *eventWriter) Done() error {
	return w.emit(domain.DoneEvent())
}

func (w *eventWriter) Error(ev domain.Event) error {
	return w.emit(ev)
}

// Started reports whether anything has been written to the client.
func (w *eventWriter) Started() bool {
	return w.state != writerIdle
}

func (w *eventWriter) emit(ev domain.Event) error {
	switch {
	case w.state == writerClosed:
		return fmt.Errorf("%w: %s after terminal event", ErrEventOrder, ev.Type)
	case w.state == writerIdle && ev.Type != domain.EventTypeSession:
		return fmt.Errorf("%w: %s before session", ErrEventOrder, ev.Type)
	case w.state == writerStreaming && ev.Type == domain.EventTypeSession:
		return fmt.Errorf("%w: duplicate session", ErrEventOrder)
	}

	if ev.Type.Terminal() {
		// A failed terminal write still ends the turn.
		w.state = writerClosed
	}
	if err := w.sink.Send(ev); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	if ev.Type == domain.EventTypeSession {
		w.state = writerStreaming
	}
	return nil
}

// Relay bridges a provider stream to a client event sequence.
type Relay struct {
	buffer  int
	metrics *metrics.Metrics
}

// NewRelay creates a relay whose producer may run at most buffer fragments ahead of the client.
func NewRelay(buffer int, m *metrics.Metrics) *Relay {
	if buffer < 1 {
		buffer = 1
	}
	return &Relay{buffer: buffer, metrics: m}
}

type fragment struct {
	text string
	err  error
}

// Run forwards every non-empty fragment of stream as a content event and
// returns the concatenation of what was emitted. It stops when the stream
// ends, fails, ctx is done or a write to the client fails. The stream is
// closed and the producer has exited by the time Run returns.
func (r *Relay) Run(ctx context.Context, stream llm.Stream, ev *eventWriter) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	frags := make(chan fragment, r.buffer)
	producerDone := make(chan struct{})

	go func() {
		defer close(producerDone)
		defer close(frags)
		for {
			text, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case frags <- fragment{err: err}:
				case <-ctx.Done():
				}
				return
			}
			if text == "" {
				continue
			}
			select {
			case frags <- fragment{text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer func() {
		cancel()
		// Closing unblocks a producer parked in Recv.
		_ = stream.Close()
		<-producerDone
	}()

	var text strings.Builder
	for {
		select {
		case <-ctx.Done():
			return text.String(), ctx.Err()
		case f, ok := <-frags:
			if !ok {
				return text.String(), nil
			}
			if f.err != nil {
				return text.String(), f.err
			}
			if err := ev.Content(f.text); err != nil {
				return text.String(), err
			}
			text.WriteString(f.text)
			r.metrics.AddFragment()
		}
	}
}
