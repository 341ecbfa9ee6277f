// Package store defines the conversation storage interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/kidlearn/tutor/internal/domain"
)

// Store defines the interface for conversation persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessionsForUser(ctx context.Context, userID string) ([]domain.SessionSummary, error)

	// Turn operations
	BeginTurn(ctx context.Context, turn *domain.Turn, userMessage *domain.Message) error
	FinishTurn(ctx context.Context, turnID string, status domain.TurnStatus, errMsg string) error
	GetTurn(ctx context.Context, turnID string) (*domain.Turn, error)

	// Message operations
	AppendMessage(ctx context.Context, message *domain.Message) error
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)

	// Subject operations
	GetSubjectName(ctx context.Context, subjectID string) (string, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
