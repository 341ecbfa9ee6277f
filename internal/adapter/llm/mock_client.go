package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/kidlearn/tutor/internal/domain"
)

// MockClient is a deterministic Provider for local runs and tests.
// By default it echoes the last user message in fixed-size chunks.
type MockClient struct {
	// Response overrides the generated reply when non-empty.
	Response string
	// Chunks overrides how the reply is split. Takes precedence over Response.
	Chunks []string
	// ChunkSize is the fragment length used to split Response.
	ChunkSize int
	// Delay is slept before each fragment.
	Delay time.Duration

	// StartErr makes StreamChat fail before any fragment is produced.
	StartErr error
	// StreamErr is returned by Recv after FailAfter fragments.
	StreamErr error
	FailAfter int
	// Hang keeps the stream open after the last fragment until ctx is done
	// or the stream is closed.
	Hang bool

	// EmbeddingDims is the vector length returned by Embed.
	EmbeddingDims int

	mu       sync.Mutex
	requests [][]Message
	closed   int
}

// NewMockClient creates a new mock provider.
func NewMockClient() *MockClient {
	return &MockClient{ChunkSize: 10, EmbeddingDims: 8}
}

// Ensure MockClient implements Provider interface.
var _ Provider = (*MockClient)(nil)

// StreamChat records the request and returns a scripted stream.
func (m *MockClient) StreamChat(ctx context.Context, messages []Message) (Stream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, append([]Message(nil), messages...))
	m.mu.Unlock()

	if m.StartErr != nil {
		return nil, m.StartErr
	}

	chunks := m.Chunks
	if chunks == nil {
		chunkSize := m.ChunkSize
		if chunkSize <= 0 {
			chunkSize = 10
		}
		chunks = splitIntoChunks(m.generateMockResponse(messages), chunkSize)
	}

	failAfter := -1
	if m.StreamErr != nil {
		failAfter = m.FailAfter
	}

	return &mockStream{
		ctx:       ctx,
		owner:     m,
		chunks:    chunks,
		delay:     m.Delay,
		failAfter: failAfter,
		failErr:   m.StreamErr,
		hang:      m.Hang,
		closed:    make(chan struct{}),
	}, nil
}

// Embed returns a deterministic vector derived from text.
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := m.EmbeddingDims
	if dims <= 0 {
		dims = 8
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed>>40) / float32(1<<24)
	}
	return vec, nil
}

// Requests returns the message sequences received so far.
func (m *MockClient) Requests() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.requests...)
}

// LastRequest returns the most recent message sequence, or nil.
func (m *MockClient) LastRequest() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// ClosedStreams reports how many streams were closed.
func (m *MockClient) ClosedStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// generateMockResponse generates a mock response based on the request.
func (m *MockClient) generateMockResponse(messages []Message) string {
	if m.Response != "" {
		return m.Response
	}

	var lastUserMessage string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			lastUserMessage = messages[i].Content
			break
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the tutor."
	}

	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

type mockStream struct {
	ctx       context.Context
	owner     *MockClient
	chunks    []string
	next      int
	delay     time.Duration
	failAfter int
	failErr   error
	hang      bool
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *mockStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.failAfter >= 0 && s.next >= s.failAfter {
		return "", s.failErr
	}
	if s.next >= len(s.chunks) {
		if s.hang {
			select {
			case <-s.ctx.Done():
				return "", s.ctx.Err()
			case <-s.closed:
				return "", io.ErrClosedPipe
			}
		}
		return "", io.EOF
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		case <-s.closed:
			return "", io.ErrClosedPipe
		}
	}
	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}

func (s *mockStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.owner.mu.Lock()
		s.owner.closed++
		s.owner.mu.Unlock()
	})
	return nil
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func splitIntoChunks(s string, chunkSize int) []string {
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
