package domain

import "time"

// Session represents a conversation between one user and the tutor.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message represents a single message in a session.
type Message struct {
	MessageID  string    `json:"message_id"`
	SessionID  string    `json:"session_id"`
	TurnID     string    `json:"turn_id,omitempty"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Incomplete bool      `json:"incomplete,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Turn represents one user message and its resulting assistant response.
type Turn struct {
	TurnID        string     `json:"turn_id"`
	SessionID     string     `json:"session_id"`
	UserMessageID string     `json:"user_message_id"`
	Status        TurnStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// Stored records above use snake_case tags. The client payloads below keep
// the camelCase field names the tutor API has always served.

// SessionSummary is a session as listed for its owner.
type SessionSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	SubjectName  string    `json:"subjectName,omitempty"`
	FirstMessage string    `json:"firstMessage,omitempty"`
}

// TranscriptMessage is a message as replayed to a client.
type TranscriptMessage struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	Incomplete bool      `json:"incomplete,omitempty"`
}

// ChatRequest is the inbound payload of a chat turn.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	SubjectID string `json:"subjectId,omitempty"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
}

// TurnResult summarizes a completed or interrupted turn.
type TurnResult struct {
	SessionID  string
	TurnID     string
	Content    string
	Incomplete bool
}
