package v1

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/kidlearn/tutor/internal/adapter/llm"
	"github.com/kidlearn/tutor/internal/auth"
	"github.com/kidlearn/tutor/internal/config"
	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/metrics"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/internal/repository"
	"github.com/kidlearn/tutor/internal/service"
	"github.com/kidlearn/tutor/policy"
	"github.com/kidlearn/tutor/tests/helpers"
)

var student = domain.Principal{UserID: "u1", Role: "student"}

func newTestHandler(t *testing.T, provider llm.Provider) (*Handler, *store.SQLiteStore) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)

	cfg := config.Default()
	cfg.LLMProvider = "mock"
	cfg.ProviderTimeout = 5 * time.Second

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	svc := service.New(st, provider, cfg, engine, metrics.New(), observability.Discard())
	return NewHandler(svc, observability.Discard()), st
}

func newContext(method, target, body string, p *domain.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if p != nil {
		auth.WithPrincipal(c, *p)
	}
	return c, rec
}

// decodeSSE reads every "data:" frame of an event stream.
func decodeSSE(t *testing.T, body string) []domain.Event {
	t.Helper()
	var events []domain.Event
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev domain.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func eventTypes(events []domain.Event) []domain.EventType {
	types := make([]domain.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}
