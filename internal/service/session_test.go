package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidlearn/tutor/internal/adapter/llm"
	"github.com/kidlearn/tutor/internal/domain"
)

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, llm.NewMockClient(), nil)

	first, err := svc.Chat(ctx, student, domain.ChatRequest{Message: "first question", SubjectID: "reading"}, &recordingSink{})
	require.NoError(t, err)
	second, err := svc.Chat(ctx, student, domain.ChatRequest{Message: "second question"}, &recordingSink{})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, domain.Principal{UserID: "u2"}, domain.ChatRequest{Message: "not yours"}, &recordingSink{})
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, student)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.SessionID, sessions[0].ID)
	assert.Equal(t, "second question", sessions[0].FirstMessage)
	assert.Equal(t, first.SessionID, sessions[1].ID)
	assert.Equal(t, "Reading", sessions[1].SubjectName)
	assert.Equal(t, "first question", sessions[1].FirstMessage)
}

func TestGetSessionMessagesOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, llm.NewMockClient(), nil)

	result, err := svc.Chat(ctx, student, domain.ChatRequest{Message: "hello"}, &recordingSink{})
	require.NoError(t, err)

	_, err = svc.GetSessionMessages(ctx, domain.Principal{UserID: "intruder"}, result.SessionID)
	assert.Equal(t, http.StatusNotFound, domain.HTTPStatus(err))

	_, err = svc.GetSessionMessages(ctx, student, "missing")
	assert.Equal(t, http.StatusNotFound, domain.HTTPStatus(err))
	assert.Equal(t, domain.MsgSessionMissing, domain.PublicMessage(err))
}

func TestGetSessionMessagesMarksIncomplete(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockClient()
	mock.Chunks = []string{"half"}
	mock.StreamErr = errors.New("boom")
	mock.FailAfter = 1
	svc, _ := newTestService(t, mock, nil)

	result, err := svc.Chat(ctx, student, domain.ChatRequest{Message: "q"}, &recordingSink{})
	require.Error(t, err)

	transcript, err := svc.GetSessionMessages(ctx, student, result.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.False(t, transcript[0].Incomplete)
	assert.True(t, transcript[1].Incomplete)
	assert.Equal(t, "half", transcript[1].Content)
}

func TestEmbed(t *testing.T) {
	svc, _ := newTestService(t, llm.NewMockClient(), nil)

	vec, err := svc.Embed(context.Background(), "photosynthesis")
	require.NoError(t, err)
	assert.Len(t, vec, 8)

	_, err = svc.Embed(context.Background(), " ")
	assert.Equal(t, http.StatusBadRequest, domain.HTTPStatus(err))
}

func TestHealth(t *testing.T) {
	svc, _ := newTestService(t, llm.NewMockClient(), nil)
	assert.NoError(t, svc.Health(context.Background()))
}
