package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures of a chat turn.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindAuth       ErrorKind = "auth"
	KindNotFound   ErrorKind = "not_found"
	KindStore      ErrorKind = "store"
	KindUpstream   ErrorKind = "upstream"
	KindCancelled  ErrorKind = "cancelled"
	KindInternal   ErrorKind = "internal"
)

// Client-facing messages. Details stay in the logs.
const (
	MsgChatFailed     = "Tutor chat failed"
	MsgStreamFailed   = "Chat failed"
	MsgInternalError  = "Internal server error"
	MsgSessionMissing = "Session not found"
)

// Error is a classified failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationError reports bad client input. Msg is shown to the client.
func ValidationError(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// AuthError reports a missing or invalid credential.
func AuthError(msg string) error {
	return &Error{Kind: KindAuth, Msg: msg}
}

// NotFoundError reports a missing resource or one the caller may not see.
func NotFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// StoreError wraps a ConversationStore failure.
func StoreError(op string, err error) error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

// UpstreamError wraps a completion provider failure.
func UpstreamError(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// CancelledError reports a turn abandoned by its client.
func CancelledError(op string, err error) error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// InternalError wraps a failure that is neither the client's nor a collaborator's.
func InternalError(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the kind of err. Unclassified context cancellation counts as
// KindCancelled, anything else unclassified as KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// HTTPStatus maps an error to the status of a synchronous response.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindCancelled:
		// nginx's "client closed request"; never reaches a live client.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text a client sees for a synchronous error response.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation, KindAuth, KindNotFound:
			return e.Msg
		case KindStore, KindUpstream:
			return MsgChatFailed
		}
	}
	return MsgInternalError
}

// ErrorEvent maps an error to the terminal event of a stream that already started.
func ErrorEvent(err error) Event {
	msg := MsgStreamFailed
	var e *Error
	if errors.As(err, &e) && (e.Kind == KindValidation || e.Kind == KindNotFound || e.Kind == KindAuth) {
		msg = e.Msg
	}
	return Event{Type: EventTypeError, Error: msg}
}
