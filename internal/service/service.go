// Package service implements the tutor conversation engine.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/kidlearn/tutor/internal/adapter/llm"
	"github.com/kidlearn/tutor/internal/config"
	"github.com/kidlearn/tutor/internal/domain"
	"github.com/kidlearn/tutor/internal/metrics"
	"github.com/kidlearn/tutor/internal/observability"
	"github.com/kidlearn/tutor/internal/repository"
	"github.com/kidlearn/tutor/policy"
)

type Service struct {
	store        store.Store
	provider     llm.Provider
	config       *config.Config
	policyEngine *policy.Engine
	metrics      *metrics.Metrics
	logger       *slog.Logger
	relay        *Relay
	now          func() time.Time
}

func New(store store.Store, provider llm.Provider, cfg *config.Config, policyEngine *policy.Engine, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = observability.Logger()
	}
	return &Service{
		store:        store,
		provider:     provider,
		config:       cfg,
		policyEngine: policyEngine,
		metrics:      m,
		logger:       logger,
		relay:        NewRelay(cfg.StreamBuffer, m),
		now:          time.Now,
	}
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// canAccess asks the policy engine whether principal may act on session.
func (s *Service) canAccess(ctx context.Context, principal domain.Principal, session *domain.Session, action string) (bool, error) {
	return s.policyEngine.AllowSession(ctx, principal.UserID, principal.Role, session.UserID, action)
}
