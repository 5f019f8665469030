package domain

import "context"

// Document is a single feedback record stored in a collection.
// ID is unique within the collection; re-indexing the same ID replaces the text.
type Document struct {
	ID   string
	Text string
}

// QueryResult is a matching document with its distance to the query vector.
// Lower distance means closer.
type QueryResult struct {
	Document Document
	Distance float64
}

// Distance names the metric a collection uses for nearest-neighbour search.
type Distance string

const (
	// DistanceCosine is 1 - cosine similarity, in [0, 2].
	DistanceCosine Distance = "cosine"
	// DistanceL2 is the Euclidean distance.
	DistanceL2 Distance = "l2"
)

// Embedder converts free text into dense vectors.
// Embed returns exactly one vector per input text, in input order.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a single completion for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// CollectionOptions are applied when a collection is created. An existing
// collection keeps the options it was created with.
type CollectionOptions struct {
	Distance Distance
	// Embedder is the identity of the embedder that produces the collection's
	// vectors. Backends that record it reject a collection built by another one.
	Embedder string
}

// Store is a vector store holding named collections.
type Store interface {
	// Collection returns the named collection, creating it when missing.
	Collection(ctx context.Context, name string, opts CollectionOptions) (Collection, error)
	Close() error
}

// Collection is a named set of documents and their vectors.
type Collection interface {
	Name() string
	// Upsert inserts new documents and replaces existing ones with the same ID.
	Upsert(ctx context.Context, docs []Document, vectors [][]float32) error
	// Query returns at most topK documents ordered by ascending distance.
	Query(ctx context.Context, vector []float32, topK int) ([]QueryResult, error)
	Count(ctx context.Context) (int, error)
}
