package domain

// Event is one wire event of a chat turn.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// SessionEvent carries the resolved session identity.
func SessionEvent(sessionID string) Event {
	return Event{Type: EventTypeSession, SessionID: sessionID}
}

// ContentEvent carries one fragment of generated text.
func ContentEvent(fragment string) Event {
	return Event{Type: EventTypeContent, Content: fragment}
}

// DoneEvent ends a successful turn.
func DoneEvent() Event {
	return Event{Type: EventTypeDone}
}
