package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kidlearn/tutor/internal/adapter/llm"
	"github.com/kidlearn/tutor/internal/auth"
	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/metrics"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/policy"
)

// Validation messages shown to the client.
const (
	MsgMissingMessage = "Missing message"
	MsgMessageTooLong = "Message too long"
)

// turn is the working state of one Chat call.
type turn struct {
	logger    *slog.Logger
	state     domain.TurnState
	session   *domain.Session
	turnID    string
	startedAt time.Time
}

func (t *turn) transition(to domain.TurnState) {
	t.logger.Debug("turn transition", "from", t.state, "to", to)
	t.state = to
}

// Chat runs one chat turn: it resolves the session, persists the user
// message, streams the provider's reply to sink and persists the reply.
//
// An error returned before sink received anything must be reported to the
// client synchronously. Once the stream started, failures have already been
// reported through a terminal error event, or the client is gone.
func (s *Service) Chat(ctx context.Context, principal domain.Principal, req domain.ChatRequest, sink EventSink) (*domain.TurnResult, error) {
	t := &turn{
		logger:    observability.FromContext(ctx, s.logger).With("user_id", principal.UserID),
		state:     domain.TurnStateInit,
		startedAt: s.now(),
	}

	message, err := s.validate(principal, req)
	if err != nil {
		s.metrics.ObserveTurn(metrics.OutcomeRejected, s.now().Sub(t.startedAt))
		return nil, err
	}

	session, err := s.resolveSession(ctx, principal, req)
	if err != nil {
		s.metrics.ObserveTurn(metrics.OutcomeRejected, s.now().Sub(t.startedAt))
		return nil, err
	}
	t.session = session
	t.logger = t.logger.With("session_id", session.SessionID)
	t.transition(domain.TurnStateSessionResolved)

	result, err := s.runTurn(ctx, t, message, req.SubjectID, sink)
	s.metrics.ObserveTurn(outcomeOf(err), s.now().Sub(t.startedAt))
	return result, err
}

func (s *Service) validate(principal domain.Principal, req domain.ChatRequest) (string, error) {
	if principal.UserID == "" {
		return "", domain.AuthError(auth.MsgMissingHeader)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", domain.ValidationError(MsgMissingMessage)
	}
	if s.config.MaxMessageLength > 0 && utf8.RuneCountInString(message) > s.config.MaxMessageLength {
		return "", domain.ValidationError(MsgMessageTooLong)
	}
	return message, nil
}

// resolveSession loads the requested session or creates a new one. A session
// that does not exist and one the caller may not continue look the same.
func (s *Service) resolveSession(ctx context.Context, principal domain.Principal, req domain.ChatRequest) (*domain.Session, error) {
	if req.SessionID == "" {
		session := &domain.Session{
			SessionID: uuid.New().String(),
			UserID:    principal.UserID,
			SubjectID: req.SubjectID,
			CreatedAt: s.now(),
		}
		if err := s.store.CreateSession(ctx, session); err != nil {
			return nil, domain.StoreError("create session", err)
		}
		return session, nil
	}

	session, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, domain.StoreError("get session", err)
	}
	if session == nil {
		return nil, domain.NotFoundError(domain.MsgSessionMissing)
	}
	allowed, err := s.canAccess(ctx, principal, session, policy.ActionContinue)
	if err != nil {
		return nil, domain.InternalError("session policy", err)
	}
	if !allowed {
		return nil, domain.NotFoundError(domain.MsgSessionMissing)
	}
	return session, nil
}

func (s *Service) runTurn(ctx context.Context, t *turn, message, subjectID string, sink EventSink) (*domain.TurnResult, error) {
	sessionID := t.session.SessionID
	now := s.now()
	t.turnID = "turn_" + uuid.New().String()
	userMsg := &domain.Message{
		MessageID: "msg_" + uuid.New().String(),
		SessionID: sessionID,
		TurnID:    t.turnID,
		Role:      domain.RoleUser,
		Content:   message,
		CreatedAt: now,
	}
	if err := s.store.BeginTurn(ctx, &domain.Turn{
		TurnID:        t.turnID,
		SessionID:     sessionID,
		UserMessageID: userMsg.MessageID,
		Status:        domain.TurnStatusStreaming,
		StartedAt:     now,
	}, userMsg); err != nil {
		return nil, domain.StoreError("persist user message", err)
	}
	t.logger = t.logger.With("turn_id", t.turnID)
	t.transition(domain.TurnStateMessagePersisted)

	history, err := s.store.ListRecentMessages(ctx, sessionID, s.config.HistoryLimit)
	if err != nil {
		return nil, s.failBeforeStream(ctx, t, domain.StoreError("load history", err))
	}
	t.transition(domain.TurnStateHistoryLoaded)

	if subjectID == "" {
		subjectID = t.session.SubjectID
	}
	subject, err := s.store.GetSubjectName(ctx, subjectID)
	if err != nil {
		return nil, s.failBeforeStream(ctx, t, domain.StoreError("load subject", err))
	}

	providerCtx := ctx
	if s.config.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		providerCtx, cancel = context.WithTimeout(ctx, s.config.ProviderTimeout)
		defer cancel()
	}

	stream, err := s.provider.StreamChat(providerCtx, buildProviderMessages(subject, history))
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.failBeforeStream(ctx, t, domain.CancelledError("request stream", ctx.Err()))
		}
		return nil, s.failBeforeStream(ctx, t, domain.UpstreamError("request stream", err))
	}

	ev := newEventWriter(sink)
	result := &domain.TurnResult{SessionID: sessionID, TurnID: t.turnID}
	if err := ev.Session(sessionID); err != nil {
		_ = stream.Close()
		s.finishTurn(ctx, t, domain.TurnStatusCancelled, err.Error())
		return result, domain.CancelledError("send session", err)
	}
	t.transition(domain.TurnStateStreaming)

	s.metrics.StreamStarted()
	text, relayErr := s.relay.Run(providerCtx, stream, ev)
	s.metrics.StreamEnded()
	result.Content = text

	if relayErr != nil {
		return s.failMidStream(ctx, t, ev, result, relayErr)
	}

	// The reply is written even if the client left after the last fragment.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.AppendMessage(persistCtx, &domain.Message{
		MessageID: "msg_" + uuid.New().String(),
		SessionID: sessionID,
		TurnID:    t.turnID,
		Role:      domain.RoleAssistant,
		Content:   text,
		CreatedAt: s.now(),
	}); err != nil {
		storeErr := domain.StoreError("persist assistant message", err)
		t.logger.Error("lost assistant reply", "error", err, "length", len(text))
		s.finishTurn(ctx, t, domain.TurnStatusFailed, storeErr.Error())
		t.transition(domain.TurnStateFailed)
		if sendErr := ev.Error(domain.ErrorEvent(storeErr)); sendErr != nil {
			t.logger.Debug("client gone before error event", "error", sendErr)
		}
		return result, storeErr
	}

	s.finishTurn(ctx, t, domain.TurnStatusComplete, "")
	t.transition(domain.TurnStateComplete)
	if err := ev.Done(); err != nil {
		t.logger.Debug("client gone before done event", "error", err)
	}
	t.logger.Info("turn complete", "length", len(text))
	return result, nil
}

// failBeforeStream marks the turn failed, or cancelled for a vanished
// client, and returns err for a synchronous response.
func (s *Service) failBeforeStream(ctx context.Context, t *turn, err error) error {
	status := domain.TurnStatusFailed
	if domain.KindOf(err) == domain.KindCancelled {
		status = domain.TurnStatusCancelled
	}
	t.logger.Error("turn failed before streaming", "error", err)
	s.finishTurn(ctx, t, status, err.Error())
	t.transition(domain.TurnStateFailed)
	return err
}

func (s *Service) failMidStream(ctx context.Context, t *turn, ev *eventWriter, result *domain.TurnResult, relayErr error) (*domain.TurnResult, error) {
	clientGone := ctx.Err() != nil || errors.Is(relayErr, ErrClientGone)

	var turnErr error
	status := domain.TurnStatusFailed
	if clientGone {
		status = domain.TurnStatusCancelled
		turnErr = domain.CancelledError("relay", relayErr)
		t.logger.Info("client disconnected mid-stream", "error", relayErr, "length", len(result.Content))
	} else {
		turnErr = domain.UpstreamError("relay", relayErr)
		t.logger.Error("stream failed", "error", relayErr, "length", len(result.Content))
	}

	result.Incomplete = s.persistPartial(ctx, t, result.Content)
	s.finishTurn(ctx, t, status, turnErr.Error())
	t.transition(domain.TurnStateFailed)

	if !clientGone {
		if err := ev.Error(domain.ErrorEvent(turnErr)); err != nil {
			t.logger.Debug("client gone before error event", "error", err)
		}
	}
	return result, turnErr
}

// persistPartial stores text cut short by a failure as an incomplete
// assistant message when the partial policy asks for it.
func (s *Service) persistPartial(ctx context.Context, t *turn, text string) bool {
	if text == "" || domain.PartialPolicy(s.config.PartialPolicy) != domain.PartialPolicyPersist {
		return false
	}
	err := s.store.AppendMessage(context.WithoutCancel(ctx), &domain.Message{
		MessageID:  "msg_" + uuid.New().String(),
		SessionID:  t.session.SessionID,
		TurnID:     t.turnID,
		Role:       domain.RoleAssistant,
		Content:    text,
		Incomplete: true,
		CreatedAt:  s.now(),
	})
	if err != nil {
		t.logger.Error("failed to persist partial reply", "error", err)
		return false
	}
	return true
}

func (s *Service) finishTurn(ctx context.Context, t *turn, status domain.TurnStatus, errMsg string) {
	if err := s.store.FinishTurn(context.WithoutCancel(ctx), t.turnID, status, errMsg); err != nil {
		t.logger.Error("failed to finish turn", "status", status, "error", err)
	}
}

func buildProviderMessages(subject string, history []domain.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: domain.RoleSystem, Content: BuildSystemPrompt(subject)})
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

func outcomeOf(err error) string {
	switch domain.KindOf(err) {
	case "":
		return metrics.OutcomeComplete
	case domain.KindCancelled:
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeFailed
	}
}
