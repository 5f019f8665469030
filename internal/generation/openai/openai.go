// Package openai is the remote generation backend: an OpenAI-compatible
// chat completions client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"insight/internal/domain"
	"insight/internal/provider"
	"insight/internal/retry"
)

// DefaultTemperature keeps completions close to deterministic.
const DefaultTemperature = 0.2

type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	// Temperature of zero means DefaultTemperature.
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	Logger      *slog.Logger
}

// Client implements domain.Generator.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	maxRetries  int
	logger      *slog.Logger
}

// NewClient fails with domain.ErrMissingCredential when the API key env var
// is empty. No request is made.
func NewClient(cfg Config) (*Client, error) {
	key, ok := provider.Credential(cfg.APIKeyEnv)
	if !ok {
		return nil, fmt.Errorf("%w: env %s is not set", domain.ErrMissingCredential, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
		maxRetries:  max(cfg.MaxRetries, 0),
		logger:      logger,
	}, nil
}

func (c *Client) Name() string { return "remote:" + c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends prompt as a single user message and returns the trimmed
// reply. An empty reply is a malformed response, never a success.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: marshal request: %w", err)
	}

	var out string
	start := time.Now()
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  c.maxRetries + 1,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		ShouldRetry:  retry.IsTransient,
	}, func() error {
		text, err := c.do(ctx, body)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		return "", err
	}
	c.logger.Debug("openai chat: completion generated", "model", c.model, "max_tokens", maxTokens, "elapsed", time.Since(start))
	return out, nil
}

func (c *Client) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("%w: openai chat: %v", domain.ErrBackend, err), 0)
	}
	payload, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return "", retry.Transient(fmt.Errorf("%w: openai chat: read body: %v", domain.ErrBackend, err), 0)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", retry.Transient(fmt.Errorf("%w: openai chat: %s", domain.ErrRateLimit, resp.Status),
			retry.ParseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= 500:
		return "", retry.Transient(fmt.Errorf("%w: openai chat failed: %s", domain.ErrBackend, resp.Status),
			retry.ParseRetryAfter(resp.Header.Get("Retry-After")))
	}

	var out chatResponse
	decodeErr := json.Unmarshal(payload, &out)
	if resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != nil {
			return "", fmt.Errorf("%w: openai chat: %s (%s): %s", domain.ErrBackend, resp.Status, out.Error.Type, out.Error.Message)
		}
		return "", fmt.Errorf("%w: openai chat failed: %s", domain.ErrBackend, resp.Status)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: openai chat: decode: %v", domain.ErrMalformedResponse, decodeErr)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: openai chat: no choices", domain.ErrMalformedResponse)
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: openai chat: empty content", domain.ErrMalformedResponse)
	}
	return text, nil
}
