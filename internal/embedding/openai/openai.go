package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"insight/internal/domain"
	"insight/internal/provider"
	"insight/internal/retry"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	// Dimension is reported before the first call; it is corrected from the
	// first response when zero.
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// NewClient creates a new embeddings client. It fails with
// domain.ErrMissingCredential when the API key env var is empty.
func NewClient(cfg Config) (*Client, error) {
	key, ok := provider.Credential(cfg.APIKeyEnv)
	if !ok {
		return nil, fmt.Errorf("%w: env %s is not set", domain.ErrMissingCredential, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: t},
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

// Name returns the identity of this embedder and its model.
func (c *Client) Name() string { return "remote:" + c.model }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	// Ollama's native endpoint answers with a single vector.
	Embedding []float32 `json:"embedding"`
	Error     *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed sends the whole batch in one request and returns the vectors in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: marshal request: %w", err)
	}

	var out [][]float32
	start := time.Now()
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  c.maxRetries + 1,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		ShouldRetry:  retry.IsTransient,
	}, func() error {
		vecs, err := c.do(ctx, body, len(texts))
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.dimension == 0 && len(out) > 0 {
		c.dimension = len(out[0])
	}
	c.logger.Debug("openai embeddings: batch embedded", "texts", len(texts), "model", c.model, "elapsed", time.Since(start))
	return out, nil
}

func (c *Client) do(ctx context.Context, body []byte, want int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("%w: openai embeddings: %v", domain.ErrBackend, err), 0)
	}
	payload, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("%w: openai embeddings: read body: %v", domain.ErrBackend, err), 0)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, retry.Transient(fmt.Errorf("%w: openai embeddings: %s", domain.ErrRateLimit, resp.Status),
			retry.ParseRetryAfter(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode >= 500 {
		return nil, retry.Transient(fmt.Errorf("%w: openai embeddings failed: %s", domain.ErrBackend, resp.Status),
			retry.ParseRetryAfter(resp.Header.Get("Retry-After")))
	}

	var out embeddingResponse
	decodeErr := json.Unmarshal(payload, &out)
	if resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != nil {
			return nil, fmt.Errorf("%w: openai embeddings: %s (%s): %s", domain.ErrBackend, resp.Status, out.Error.Type, out.Error.Message)
		}
		return nil, fmt.Errorf("%w: openai embeddings failed: %s", domain.ErrBackend, resp.Status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: openai embeddings: decode: %v", domain.ErrMalformedResponse, decodeErr)
	}

	if len(out.Data) == 0 && len(out.Embedding) > 0 && want == 1 {
		return [][]float32{out.Embedding}, nil
	}
	if len(out.Data) != want {
		return nil, fmt.Errorf("%w: openai embeddings: got %d vectors for %d inputs", domain.ErrMalformedResponse, len(out.Data), want)
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vecs := make([][]float32, want)
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: openai embeddings: empty vector at index %d", domain.ErrMalformedResponse, d.Index)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
