package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kidlearn/tutor/internal/config"
)

const (
	// EnvTutorMode is the environment variable name for mode selection.
	EnvTutorMode = "TUTOR_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewProvider creates the provider named by cfg.LLMProvider.
// TUTOR_MODE=MOCK forces the mock provider regardless of configuration.
func NewProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Provider, error) {
	name := cfg.LLMProvider
	if strings.EqualFold(os.Getenv(EnvTutorMode), ModeMock) {
		logger.Info("TUTOR_MODE=MOCK detected, using mock completion provider")
		name = "mock"
	}

	switch name {
	case "mock":
		return NewMockClient(), nil
	case "ark":
		logger.Info("using ark completion provider", "model", cfg.ArkModel, "region", cfg.ArkRegion)
		return NewArkClient(ctx, ArkConfig{
			BaseURL:     cfg.ArkBaseURL,
			Region:      cfg.ArkRegion,
			APIKey:      cfg.ArkAPIKey,
			AccessKey:   cfg.ArkAccessKey,
			SecretKey:   cfg.ArkSecretKey,
			Model:       cfg.ArkModel,
			MaxTokens:   cfg.MaxTokens,
			Temperature: float32(cfg.Temperature),
		})
	case "openai", "":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY is empty, completion requests will fail")
		}
		logger.Info("using openai completion provider", "model", cfg.ChatModel)
		return NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			MaxTokens:      cfg.MaxTokens,
			Temperature:    float32(cfg.Temperature),
		}), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", name)
	}
}
