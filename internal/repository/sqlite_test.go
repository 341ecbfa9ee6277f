package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidlearn/tutor/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createSession(t *testing.T, store *SQLiteStore, id, userID, subjectID string, at time.Time) {
	t.Helper()
	err := store.CreateSession(context.Background(), &domain.Session{
		SessionID: id,
		UserID:    userID,
		SubjectID: subjectID,
		CreatedAt: at,
	})
	require.NoError(t, err)
}

func appendMessage(t *testing.T, store *SQLiteStore, id, sessionID string, role domain.Role, content string, at time.Time) {
	t.Helper()
	err := store.AppendMessage(context.Background(), &domain.Message{
		MessageID: id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
	})
	require.NoError(t, err)
}

func TestSQLiteStoreSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	createSession(t, store, "s1", "u1", "math", time.Now())

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "math", got.SubjectID)

	missing, err := store.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStoreMessagesOrderedWithTies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()
	createSession(t, store, "s1", "u1", "", now)

	// Same timestamp for all three: insertion order must win.
	appendMessage(t, store, "m1", "s1", domain.RoleUser, "first", now)
	appendMessage(t, store, "m2", "s1", domain.RoleAssistant, "second", now)
	appendMessage(t, store, "m3", "s1", domain.RoleUser, "third", now)

	msgs, err := store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, contents(msgs))
}

func TestSQLiteStoreListRecentMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	createSession(t, store, "s1", "u1", "", base)

	for i := 0; i < 25; i++ {
		appendMessage(t, store, fmt.Sprintf("m%d", i), "s1", domain.RoleUser,
			fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second))
	}

	recent, err := store.ListRecentMessages(ctx, "s1", 20)
	require.NoError(t, err)
	require.Len(t, recent, 20)
	assert.Equal(t, "msg-5", recent[0].Content)
	assert.Equal(t, "msg-24", recent[19].Content)

	few, err := store.ListRecentMessages(ctx, "s1", 100)
	require.NoError(t, err)
	assert.Len(t, few, 25)
	assert.Equal(t, "msg-0", few[0].Content)

	none, err := store.ListRecentMessages(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStoreTurnLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()
	createSession(t, store, "s1", "u1", "", now)

	turn := &domain.Turn{
		TurnID:        "t1",
		SessionID:     "s1",
		UserMessageID: "m1",
		Status:        domain.TurnStatusStreaming,
		StartedAt:     now,
	}
	msg := &domain.Message{
		MessageID: "m1",
		SessionID: "s1",
		TurnID:    "t1",
		Role:      domain.RoleUser,
		Content:   "hello",
		CreatedAt: now,
	}
	require.NoError(t, store.BeginTurn(ctx, turn, msg))

	got, err := store.GetTurn(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.TurnStatusStreaming, got.Status)
	assert.Nil(t, got.EndedAt)

	require.NoError(t, store.FinishTurn(ctx, "t1", domain.TurnStatusFailed, "upstream: boom"))

	got, err = store.GetTurn(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusFailed, got.Status)
	assert.Equal(t, "upstream: boom", got.Error)
	assert.NotNil(t, got.EndedAt)

	msgs, err := store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "t1", msgs[0].TurnID)

	assert.Error(t, store.FinishTurn(ctx, "missing", domain.TurnStatusComplete, ""))
}

func TestSQLiteStoreFailInterruptedTurns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()
	createSession(t, store, "s1", "u1", "", now)

	for i, id := range []string{"t1", "t2", "t3"} {
		msgID := fmt.Sprintf("m%d", i+1)
		require.NoError(t, store.BeginTurn(ctx, &domain.Turn{
			TurnID:        id,
			SessionID:     "s1",
			UserMessageID: msgID,
			Status:        domain.TurnStatusStreaming,
			StartedAt:     now,
		}, &domain.Message{
			MessageID: msgID,
			SessionID: "s1",
			TurnID:    id,
			Role:      domain.RoleUser,
			Content:   "hi",
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	require.NoError(t, store.FinishTurn(ctx, "t1", domain.TurnStatusComplete, ""))
	require.NoError(t, store.FinishTurn(ctx, "t2", domain.TurnStatusCancelled, ""))

	n, err := store.FailInterruptedTurns(ctx, "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetTurn(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusFailed, got.Status)
	assert.Equal(t, "interrupted by restart", got.Error)
	assert.NotNil(t, got.EndedAt)

	got, err = store.GetTurn(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusComplete, got.Status)
	got, err = store.GetTurn(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusCancelled, got.Status)

	n, err = store.FailInterruptedTurns(ctx, "interrupted by restart")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStoreBeginTurnIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// No session row: the message insert violates the foreign key and the turn must roll back.
	turn := &domain.Turn{TurnID: "t1", SessionID: "ghost", UserMessageID: "m1", Status: domain.TurnStatusStreaming, StartedAt: time.Now()}
	msg := &domain.Message{MessageID: "m1", SessionID: "ghost", TurnID: "t1", Role: domain.RoleUser, Content: "hi", CreatedAt: time.Now()}
	assert.Error(t, store.BeginTurn(ctx, turn, msg))

	got, err := store.GetTurn(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStoreIncompleteFlag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createSession(t, store, "s1", "u1", "", time.Now())

	require.NoError(t, store.AppendMessage(ctx, &domain.Message{
		MessageID:  "m1",
		SessionID:  "s1",
		Role:       domain.RoleAssistant,
		Content:    "partial",
		Incomplete: true,
		CreatedAt:  time.Now(),
	}))

	msgs, err := store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Incomplete)
}

func TestSQLiteStoreListSessionsForUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	createSession(t, store, "old", "u1", "math", base)
	createSession(t, store, "new", "u1", "", base.Add(time.Minute))
	createSession(t, store, "other", "u2", "", base.Add(2*time.Minute))

	appendMessage(t, store, "m1", "old", domain.RoleUser, "what is 2+2?", base.Add(time.Second))
	appendMessage(t, store, "m2", "old", domain.RoleAssistant, "4", base.Add(2*time.Second))

	sessions, err := store.ListSessionsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "new", sessions[0].ID)
	assert.Empty(t, sessions[0].SubjectName)
	assert.Empty(t, sessions[0].FirstMessage)

	assert.Equal(t, "old", sessions[1].ID)
	assert.Equal(t, "Math", sessions[1].SubjectName)
	assert.Equal(t, "what is 2+2?", sessions[1].FirstMessage)

	empty, err := store.ListSessionsForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSQLiteStoreGetSubjectName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	name, err := store.GetSubjectName(ctx, "science")
	require.NoError(t, err)
	assert.Equal(t, "Science", name)

	name, err = store.GetSubjectName(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, name)

	name, err = store.GetSubjectName(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestSQLiteStoreClosedReturnsErrors(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.GetSession(context.Background(), "s1")
	assert.Error(t, err)
}

func contents(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
