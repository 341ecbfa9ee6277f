package service

import (
	"context"
	"strings"

	"github.com/kidlearn/tutor/internal/domain"
)

// Embed returns the provider's embedding for text. The search subsystem that
// consumes these vectors lives outside this service.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ValidationError("Missing text")
	}
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, domain.UpstreamError("embed", err)
	}
	return vec, nil
}
