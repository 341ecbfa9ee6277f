package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/kidlearn/tutor/internal/domain"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float32
}

// OpenAIClient talks to an OpenAI compatible API.
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	maxTokens      int
	temperature    float32
}

// Ensure OpenAIClient implements Provider interface.
var _ Provider = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		chatModel:      cfg.ChatModel,
		embeddingModel: embeddingModel,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
	}
}

// StreamChat sends a streaming chat completion request.
func (c *OpenAIClient) StreamChat(ctx context.Context, messages []Message) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

// Embed creates an embedding for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("failed to create embedding: empty response")
	}
	return resp.Data[0].Embedding, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next delta. Chunks without choices yield "".
func (s *openAIStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
