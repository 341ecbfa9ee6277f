// Package llm provides an abstraction over streamed chat completion providers.
package llm

import (
	"context"
	"errors"

	"github.com/kidlearn/tutor/internal/domain"
)

// Message is one entry of the provider-facing conversation.
type Message struct {
	Role    domain.Role
	Content string
}

// Stream is a lazy, finite sequence of content fragments.
// Recv returns io.EOF once the provider has finished.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider defines the completion operations the tutor needs.
type Provider interface {
	// StreamChat starts a streamed completion. It fails when the request
	// cannot be initiated at all.
	StreamChat(ctx context.Context, messages []Message) (Stream, error)

	// Embed returns a fixed-length vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrEmbeddingUnsupported is returned by providers without an embedding endpoint.
var ErrEmbeddingUnsupported = errors.New("embeddings are not supported by this provider")
