package memory

import (
	"context"
	"fmt"
	"sync"

	"insight/internal/domain"
	"insight/internal/vectorstore"
)

// Store is a simple in-memory vector store using brute-force search.
// Contents are lost when the process exits.
type Store struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

func NewStore() *Store { return &Store{collections: make(map[string]*Collection)} }

// Collection returns the named collection, creating it with opts when missing.
func (s *Store) Collection(ctx context.Context, name string, opts domain.CollectionOptions) (domain.Collection, error) {
	if err := domain.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if err := vectorstore.CheckEmbedder(name, c.embedder, opts.Embedder); err != nil {
			return nil, err
		}
		return c, nil
	}
	dist := opts.Distance
	if dist == "" {
		dist = domain.DistanceCosine
	}
	c := &Collection{
		name:     name,
		distance: dist,
		embedder: opts.Embedder,
		index:    make(map[string]int),
	}
	s.collections[name] = c
	return c, nil
}

func (s *Store) Close() error { return nil }

// Collection is one named set of documents held in memory.
type Collection struct {
	mu        sync.RWMutex
	name      string
	distance  domain.Distance
	embedder  string
	dimension int
	docs      []domain.Document
	vectors   [][]float32
	index     map[string]int
}

func (c *Collection) Name() string { return c.name }

// Upsert replaces documents with a known id in place and appends the rest.
func (c *Collection) Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	dim, err := vectorstore.ValidateBatch(docs, vectors, c.dimension)
	if err != nil {
		return fmt.Errorf("memory upsert into %q: %w", c.name, err)
	}
	if len(docs) == 0 {
		return nil
	}
	c.dimension = dim
	for i, doc := range docs {
		vec := append([]float32(nil), vectors[i]...)
		if j, ok := c.index[doc.ID]; ok {
			c.docs[j] = doc
			c.vectors[j] = vec
			continue
		}
		c.index[doc.ID] = len(c.docs)
		c.docs = append(c.docs, doc)
		c.vectors = append(c.vectors, vec)
	}
	return nil
}

func (c *Collection) Query(ctx context.Context, vector []float32, topK int) ([]domain.QueryResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dimension != 0 && len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection %q uses %d",
			domain.ErrInput, len(vector), c.name, c.dimension)
	}
	results := make([]domain.QueryResult, len(c.docs))
	for i := range c.docs {
		results[i] = domain.QueryResult{
			Document: c.docs[i],
			Distance: vectorstore.Distance(c.distance, c.vectors[i], vector),
		}
	}
	return vectorstore.Rank(results, topK), nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}
