package service

import (
	"context"

	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/policy"
)

// ListSessions returns the caller's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, principal domain.Principal) ([]domain.SessionSummary, error) {
	sessions, err := s.store.ListSessionsForUser(ctx, principal.UserID)
	if err != nil {
		return nil, domain.StoreError("list sessions", err)
	}
	return sessions, nil
}

// GetSessionMessages replays a session's transcript in conversation order.
// Sessions the caller may not read are reported as missing.
func (s *Service) GetSessionMessages(ctx context.Context, principal domain.Principal, sessionID string) ([]domain.TranscriptMessage, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.StoreError("get session", err)
	}
	if session == nil {
		return nil, domain.NotFoundError(domain.MsgSessionMissing)
	}
	allowed, err := s.canAccess(ctx, principal, session, policy.ActionRead)
	if err != nil {
		return nil, domain.InternalError("session policy", err)
	}
	if !allowed {
		return nil, domain.NotFoundError(domain.MsgSessionMissing)
	}

	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, domain.StoreError("list messages", err)
	}
	transcript := make([]domain.TranscriptMessage, 0, len(messages))
	for _, m := range messages {
		transcript = append(transcript, domain.TranscriptMessage{
			Role:       m.Role,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
			Incomplete: m.Incomplete,
		})
	}
	return transcript, nil
}
