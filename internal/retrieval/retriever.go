// Package retrieval indexes feedback texts and finds the ones closest to a query.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"insight/internal/domain"
)

// Options select the collection a Retriever works on.
type Options struct {
	Collection string
	Distance   domain.Distance
	Logger     *slog.Logger
}

// Retriever pairs an embedder with one collection of a vector store.
type Retriever struct {
	embedder   domain.Embedder
	collection domain.Collection
	logger     *slog.Logger
}

// New gets or creates the collection. The collection records the embedder
// identity so vectors from different embedders are never mixed.
func New(ctx context.Context, embedder domain.Embedder, store domain.Store, opts Options) (*Retriever, error) {
	if embedder == nil || store == nil {
		return nil, fmt.Errorf("%w: retriever needs an embedder and a store", domain.ErrConfiguration)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	col, err := store.Collection(ctx, opts.Collection, domain.CollectionOptions{
		Distance: opts.Distance,
		Embedder: embedder.Name(),
	})
	if err != nil {
		return nil, err
	}
	return &Retriever{embedder: embedder, collection: col, logger: logger}, nil
}

// Embedder returns the embedder used for documents and queries.
func (r *Retriever) Embedder() domain.Embedder { return r.embedder }

// Collection returns the collection name.
func (r *Retriever) Collection() string { return r.collection.Name() }

// IndexTexts embeds every text, then upserts the whole batch. Nothing is
// written when embedding fails. Re-indexing an id replaces its text.
func (r *Retriever) IndexTexts(ctx context.Context, ids, texts []string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("%w: %d ids but %d texts", domain.ErrInput, len(ids), len(texts))
	}
	if len(texts) == 0 {
		return nil
	}
	start := time.Now()
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrBackend, len(vecs), len(texts))
	}
	docs := make([]domain.Document, len(texts))
	for i := range texts {
		docs[i] = domain.Document{ID: ids[i], Text: texts[i]}
	}
	if err := r.collection.Upsert(ctx, docs, vecs); err != nil {
		return err
	}
	r.logger.Debug("texts indexed", "collection", r.collection.Name(), "count", len(texts), "elapsed", time.Since(start))
	return nil
}

// Search returns up to topK documents with their distance to the query,
// closest first.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]domain.QueryResult, error) {
	if topK <= 0 {
		return []domain.QueryResult{}, nil
	}
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", domain.ErrBackend, len(vecs))
	}
	return r.collection.Query(ctx, vecs[0], topK)
}

// Query is Search reduced to parallel slices of texts and distances.
func (r *Retriever) Query(ctx context.Context, query string, topK int) ([]string, []float64, error) {
	res, err := r.Search(ctx, query, topK)
	if err != nil {
		return nil, nil, err
	}
	docs := make([]string, len(res))
	dists := make([]float64, len(res))
	for i, qr := range res {
		docs[i] = qr.Document.Text
		dists[i] = qr.Distance
	}
	return docs, dists, nil
}

// Count returns the number of documents in the collection.
func (r *Retriever) Count(ctx context.Context) (int, error) { return r.collection.Count(ctx) }
