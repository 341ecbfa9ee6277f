package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/kidlearn/tutor/internal/domain"
)

// ArkConfig configures an ArkClient.
type ArkConfig struct {
	BaseURL     string
	Region      string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	MaxTokens   int
	Temperature float32
}

// ArkClient streams completions from a Volcengine Ark model through eino.
type ArkClient struct {
	chatModel model.BaseChatModel
}

// Ensure ArkClient implements Provider interface.
var _ Provider = (*ArkClient)(nil)

// NewArkClient creates an Ark backed provider.
func NewArkClient(ctx context.Context, cfg ArkConfig) (*ArkClient, error) {
	if cfg.Model == "" || (cfg.APIKey == "" && (cfg.AccessKey == "" || cfg.SecretKey == "")) {
		return nil, fmt.Errorf("ark requires ARK_MODEL and either ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	var maxTokens *int
	if cfg.MaxTokens > 0 {
		val := cfg.MaxTokens
		maxTokens = &val
	}
	temperature := cfg.Temperature

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		APIKey:      cfg.APIKey,
		AccessKey:   cfg.AccessKey,
		SecretKey:   cfg.SecretKey,
		Model:       cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}
	return NewArkClientWithModel(chatModel), nil
}

// NewArkClientWithModel wraps an existing eino chat model.
func NewArkClientWithModel(chatModel model.BaseChatModel) *ArkClient {
	return &ArkClient{chatModel: chatModel}
}

// StreamChat starts a streamed completion.
func (c *ArkClient) StreamChat(ctx context.Context, messages []Message) (Stream, error) {
	reader, err := c.chatModel.Stream(ctx, toSchemaMessages(messages))
	if err != nil {
		return nil, fmt.Errorf("failed to stream ark completion: %w", err)
	}
	return &arkStream{reader: reader}, nil
}

// Embed is not offered by the chat model endpoint.
func (c *ArkClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingUnsupported
}

func toSchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}

type arkStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *arkStream) Recv() (string, error) {
	chunk, err := s.reader.Recv()
	if err != nil {
		return "", err
	}
	if chunk == nil {
		return "", nil
	}
	return chunk.Content, nil
}

func (s *arkStream) Close() error {
	s.reader.Close()
	return nil
}
