// Package domain defines the core domain models for the tutor.
package domain

// Role represents the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnStatus represents the persisted status of a turn.
type TurnStatus string

const (
	TurnStatusStreaming TurnStatus = "STREAMING"
	TurnStatusComplete  TurnStatus = "COMPLETE"
	TurnStatusFailed    TurnStatus = "FAILED"
	TurnStatusCancelled TurnStatus = "CANCELLED"
)

// TurnState is the in-process state of a chat turn.
type TurnState string

const (
	TurnStateInit             TurnState = "INIT"
	TurnStateSessionResolved  TurnState = "SESSION_RESOLVED"
	TurnStateMessagePersisted TurnState = "MESSAGE_PERSISTED"
	TurnStateHistoryLoaded    TurnState = "HISTORY_LOADED"
	TurnStateStreaming        TurnState = "STREAMING"
	TurnStateComplete         TurnState = "COMPLETE"
	TurnStateFailed           TurnState = "FAILED"
)

// EventType represents the type of a wire event.
type EventType string

const (
	EventTypeSession EventType = "session"
	EventTypeContent EventType = "content"
	EventTypeDone    EventType = "done"
	EventTypeError   EventType = "error"
)

// Terminal reports whether the event type ends a turn's stream.
func (t EventType) Terminal() bool {
	return t == EventTypeDone || t == EventTypeError
}

// PartialPolicy decides what happens to text accumulated before a turn is cut short.
type PartialPolicy string

const (
	PartialPolicyPersist PartialPolicy = "persist"
	PartialPolicyDrop    PartialPolicy = "drop"
)
