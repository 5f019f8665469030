package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"insight/internal/domain"
	"insight/internal/vectorstore"
)

// Store is a minimal REST client to Qdrant.
type Store struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant url is empty", domain.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		url:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

func (s *Store) Close() error { return nil }

// Collection looks the collection up. A missing collection is created on the
// first upsert, when the vector size is known.
func (s *Store) Collection(ctx context.Context, name string, opts domain.CollectionOptions) (domain.Collection, error) {
	if err := domain.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	c := &Collection{store: s, name: name, distance: opts.Distance}
	if c.distance == "" {
		c.distance = domain.DistanceCosine
	}

	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(name), nil, &resp)
	switch {
	case status == http.StatusNotFound:
		return c, nil
	case err != nil:
		return nil, err
	}
	c.exists = true
	c.dimension = resp.Result.Config.Params.Vectors.Size
	if d, ok := fromQdrantDistance(resp.Result.Config.Params.Vectors.Distance); ok {
		c.distance = d
	}
	return c, nil
}

// Collection is a Qdrant collection addressed by name.
type Collection struct {
	store    *Store
	name     string
	distance domain.Distance

	mu        sync.Mutex
	exists    bool
	dimension int
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	dim, err := vectorstore.ValidateBatch(docs, vectors, c.dimension)
	if err != nil {
		return fmt.Errorf("qdrant upsert into %q: %w", c.name, err)
	}
	if len(docs) == 0 {
		return nil
	}
	if !c.exists {
		if err := c.create(ctx, dim); err != nil {
			return err
		}
	}

	points := make([]map[string]any, len(docs))
	for i, doc := range docs {
		points[i] = map[string]any{
			"id":     PointID(c.name, doc.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"doc_id": doc.ID,
				"text":   doc.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	if _, err := c.store.do(ctx, http.MethodPut, c.store.collectionURL(c.name)+"/points?wait=true", body, nil); err != nil {
		return err
	}
	c.store.logger.Debug("qdrant points upserted", "collection", c.name, "count", len(docs))
	return nil
}

func (c *Collection) create(ctx context.Context, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": toQdrantDistance(c.distance),
		},
	}
	if _, err := c.store.do(ctx, http.MethodPut, c.store.collectionURL(c.name), body, nil); err != nil {
		return err
	}
	c.exists = true
	c.dimension = dim
	c.store.logger.Info("qdrant collection created", "collection", c.name, "dimension", dim, "distance", c.distance)
	return nil
}

func (c *Collection) Query(ctx context.Context, vector []float32, topK int) ([]domain.QueryResult, error) {
	c.mu.Lock()
	exists := c.exists
	c.mu.Unlock()
	if topK <= 0 || !exists {
		return []domain.QueryResult{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := c.store.do(ctx, http.MethodPost, c.store.collectionURL(c.name)+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.QueryResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		doc := domain.Document{}
		if v, ok := r.Payload["doc_id"].(string); ok {
			doc.ID = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			doc.Text = v
		}
		results = append(results, domain.QueryResult{Document: doc, Distance: scoreToDistance(c.distance, r.Score)})
	}
	return vectorstore.Rank(results, topK), nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := c.store.do(ctx, http.MethodPost, c.store.collectionURL(c.name)+"/points/count", map[string]any{"exact": true}, &resp)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// PointID maps a document id to the UUID Qdrant requires. The mapping is
// stable so re-indexing a document overwrites its point.
func PointID(collection, docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("insight:"+collection+"/"+docID)).String()
}

func toQdrantDistance(d domain.Distance) string {
	if d == domain.DistanceL2 {
		return "Euclid"
	}
	return "Cosine"
}

func fromQdrantDistance(s string) (domain.Distance, bool) {
	switch s {
	case "Cosine":
		return domain.DistanceCosine, true
	case "Euclid":
		return domain.DistanceL2, true
	}
	return "", false
}

// scoreToDistance converts a search score: Qdrant reports cosine similarity
// for Cosine collections and the distance itself for Euclid ones.
func scoreToDistance(d domain.Distance, score float64) float64 {
	if d == domain.DistanceL2 {
		return score
	}
	return 1 - score
}

func (s *Store) collectionURL(name string) string {
	return s.url + "/collections/" + url.PathEscape(name)
}

// do sends a JSON request and decodes the response into out when non-nil.
// The HTTP status is returned even when err is set.
func (s *Store) do(ctx context.Context, method, target string, body, out any) (int, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("qdrant %s: marshal: %w", method, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s: create request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrBackend, method, target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s failed: %s", domain.ErrBackend, method, target, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrMalformedResponse, method, target, err)
		}
	}
	return resp.StatusCode, nil
}
