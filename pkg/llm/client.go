package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// ClientConfig configures the OpenAI-compatible HTTP generator.
type ClientConfig struct {
	// BaseURL of the chat-completions endpoint, e.g. "https://api.openai.com/v1".
	BaseURL string
	Model   string
	// APIKey overrides the OPENAI_API_KEY environment variable when set.
	APIKey      string
	Temperature float64
	Timeout     time.Duration
	Retry       RetryConfig
	Logger      *slog.Logger
}

// HTTPGenerator implements Generator against an OpenAI-compatible
// chat-completions API with a JSON response format.
type HTTPGenerator struct {
	cfg        ClientConfig
	httpClient *http.Client
	retry      *RetryPolicy
	logger     *slog.Logger
}

// NewHTTPGenerator creates a generator for the configured endpoint.
func NewHTTPGenerator(cfg ClientConfig) *HTTPGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPGenerator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      NewRetryPolicy(cfg.Retry),
		logger:     logger,
	}
}

// Generate sends the prompt and returns the raw JSON content of the first
// completion choice. Transient failures are retried with backoff; anything
// else surfaces to the caller's validation boundary.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt Prompt) (json.RawMessage, error) {
	var out json.RawMessage
	err := g.retry.Do(ctx, func() (bool, error) {
		raw, retryable, err := g.call(ctx, prompt)
		if err != nil {
			return retryable, err
		}
		out = raw
		return false, nil
	})
	return out, err
}

func (g *HTTPGenerator) call(ctx context.Context, prompt Prompt) (json.RawMessage, bool, error) {
	user := prompt.User
	if prompt.SchemaHint != "" {
		user += "\n\nReturn JSON with this exact schema:\n" + prompt.SchemaHint
	}

	payload := map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": prompt.System},
			{"role": "user", "content": user},
		},
		"temperature":     g.cfg.Temperature,
		"response_format": map[string]string{"type": "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("llm: request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			g.logger.Warn("llm: failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retryable := retryableStatus(resp.StatusCode)
		return nil, retryable, fmt.Errorf("llm: status %d: %s", resp.StatusCode, string(respBody))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if len(completion.Choices) == 0 {
		return nil, false, fmt.Errorf("%w: no completion choices", ErrMalformedOutput)
	}

	content := json.RawMessage(completion.Choices[0].Message.Content)
	if !json.Valid(content) {
		return nil, false, fmt.Errorf("%w: content is not valid JSON", ErrMalformedOutput)
	}
	return content, false, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
