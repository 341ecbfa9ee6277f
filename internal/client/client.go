// Package client is an HTTP client for the tutor API. It decodes the chat
// event stream frame by frame.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kidlearn/tutor/internal/domain"
)

// EventHandler is called for each event of a chat turn.
type EventHandler func(ev domain.Event) error

// APIError is a non-2xx response with a JSON error body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tutor returned status %d: %s", e.Status, e.Message)
}

// Client talks to the tutor HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for baseURL authenticating with a bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for streaming
		},
	}
}

// Chat sends one message and calls handler for every event until the stream ends.
// It returns the session id announced by the stream.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest, handler EventHandler) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/tutor/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	var sessionID string
	err = parseSSE(resp.Body, func(data string) error {
		var ev domain.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		if ev.Type == domain.EventTypeSession {
			sessionID = ev.SessionID
		}
		return handler(ev)
	})
	return sessionID, err
}

// ListSessions returns the caller's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	var sessions []domain.SessionSummary
	if err := c.getJSON(ctx, "/tutor/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns a session's transcript.
func (c *Client) GetSession(ctx context.Context, sessionID string) ([]domain.TranscriptMessage, error) {
	var messages []domain.TranscriptMessage
	if err := c.getJSON(ctx, "/tutor/sessions/"+sessionID, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(bodyBytes, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(bodyBytes))
	}
	return apiErr
}

// parseSSE calls handler with the data of each event. Multi-line data is
// joined with newlines; comments and other fields are ignored.
func parseSSE(reader io.Reader, handler func(data string) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data string
	var hasData bool

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if hasData {
				if err := handler(data); err != nil {
					return err
				}
				data, hasData = "", false
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			chunk := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if hasData {
				data += "\n" + chunk
			} else {
				data, hasData = chunk, true
			}
		}
	}

	if hasData {
		if err := handler(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}
