package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// maxRetries bounds retries on rate-limit responses and transport errors.
	maxRetries = 3
	// defaultTimeout applies when OpenAIOpts.Timeout is zero.
	defaultTimeout = 120 * time.Second
)

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	backoff    time.Duration
	logger     *zap.Logger
}

// OpenAIOpts holds parameters for creating an OpenAI backend.
type OpenAIOpts struct {
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
	Timeout time.Duration
	// For testing: inject an HTTP client (e.g. pointing at httptest).
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewOpenAI creates an OpenAI-compatible backend.
func NewOpenAI(opts OpenAIOpts) (*OpenAI, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("generate: openai: base url is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("generate: openai: api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("generate: openai: model is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: client,
		backoff:    time.Second,
		logger:     logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements Generator. The system instruction is sent as the first
// message, followed by the history in order.
func (c *OpenAI) Generate(ctx context.Context, system string, history []Turn, temperature float64) (string, error) {
	messages := make([]chatMessage, 0, len(history)+1)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	for _, t := range history {
		messages = append(messages, chatMessage{Role: string(t.Role), Content: t.Content})
	}
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate: openai: marshal request: %w", err)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		text, retry, err := c.do(ctx, body)
		if err == nil {
			c.logger.Debug("openai completion",
				zap.String("model", c.model),
				zap.Int("history", len(history)),
				zap.Duration("elapsed", time.Since(start)))
			return text, nil
		}
		if !retry {
			return "", err
		}
		lastErr = err
		c.logger.Warn("openai request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return "", fmt.Errorf("generate: openai: max retries exceeded: %w", lastErr)
}

// do performs one request. The boolean reports whether the failure is worth
// retrying.
func (c *OpenAI) do(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("generate: openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", true, fmt.Errorf("generate: openai: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("generate: openai: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("generate: openai: rate limited (429)")
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("generate: openai: status %d: %s", resp.StatusCode, truncate(string(data), 200))
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("generate: openai: status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("generate: openai: parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("generate: openai: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("generate: openai: no completion returned")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
