package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidlearn/tutor/internal/adapter/llm"
	"github.com/kidlearn/tutor/internal/config"
	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/metrics"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/internal/repository"
	"github.com/kidlearn/tutor/policy"
	"github.com/kidlearn/tutor/tests/helpers"
)

var student = domain.Principal{UserID: "u1", Role: "student"}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLMProvider = "mock"
	cfg.ProviderTimeout = 5 * time.Second
	return cfg
}

func newTestService(t *testing.T, provider llm.Provider, mutate func(*config.Config)) (*Service, *store.SQLiteStore) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)
	return newTestServiceWithStore(t, st, provider, mutate), st
}

func newTestServiceWithStore(t *testing.T, st store.Store, provider llm.Provider, mutate func(*config.Config)) *Service {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	return New(st, provider, cfg, engine, metrics.New(), observability.Discard())
}

// recordingSink collects events. failOn makes Send fail for the first event of that type.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	failOn domain.EventType
	onSend func(domain.Event)
}

func (s *recordingSink) Send(ev domain.Event) error {
	if s.onSend != nil {
		s.onSend(ev)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && ev.Type == s.failOn {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

func (s *recordingSink) Types() []domain.EventType {
	var types []domain.EventType
	for _, ev := range s.Events() {
		types = append(types, ev.Type)
	}
	return types
}

func (s *recordingSink) Content() string {
	var text string
	for _, ev := range s.Events() {
		if ev.Type == domain.EventTypeContent {
			text += ev.Content
		}
	}
	return text
}

// assertEventOrder checks session first, then content, then at most one terminal event last.
func assertEventOrder(t *testing.T, events []domain.Event) {
	t.Helper()
	if len(events) == 0 {
		return
	}
	assert.Equal(t, domain.EventTypeSession, events[0].Type, "first event must be session")
	terminals := 0
	for i, ev := range events[1:] {
		switch {
		case ev.Type == domain.EventTypeSession:
			t.Errorf("duplicate session event at %d", i+1)
		case ev.Type.Terminal():
			terminals++
			assert.Equal(t, len(events)-1, i+1, "terminal event must be last")
		}
	}
	assert.LessOrEqual(t, terminals, 1)
}

// failingAppendStore fails every AppendMessage call.
type failingAppendStore struct {
	store.Store
}

func (f failingAppendStore) AppendMessage(ctx context.Context, message *domain.Message) error {
	return errors.New("disk full")
}
