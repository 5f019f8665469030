// Package chroma stores collections in a running Chroma server. Vectors are
// computed by the configured embedder and passed in explicitly, so the
// server-side embedding function is never used.
package chroma

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"insight/internal/domain"
	"insight/internal/vectorstore"
)

// includeDistances is accepted by the server but has no constant in the client.
const includeDistances chroma.Include = "distances"

type Config struct {
	URL     string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Store is a Chroma HTTP client.
type Store struct {
	client  chroma.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("%w: create chroma client: %v", domain.ErrConfiguration, err)
	}
	return &Store{client: client, timeout: cfg.Timeout, logger: logger}, nil
}

// Close is a no-op; the HTTP client holds no resources beyond idle connections.
func (s *Store) Close() error { return nil }

// Collection gets or creates the collection. The HNSW space is only applied
// on creation; Chroma keeps the original one afterwards. Vectors always come
// from the caller, so the placeholder embedding function is never invoked; it
// only keeps the client from loading its default ONNX model.
func (s *Store) Collection(ctx context.Context, name string, opts domain.CollectionOptions) (domain.Collection, error) {
	if err := domain.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	dist := opts.Distance
	if dist == "" {
		dist = domain.DistanceCosine
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	col, err := s.client.GetOrCreateCollection(ctx, name,
		chroma.WithHNSWSpaceCreate(Space(dist)),
		chroma.WithEmbeddingFunctionCreate(embeddings.NewConsistentHashEmbeddingFunction()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: chroma collection %q: %v", domain.ErrBackend, name, err)
	}
	s.logger.Debug("chroma collection ready", "collection", name, "distance", dist)
	return &Collection{col: col, name: name, distance: dist, timeout: s.timeout, logger: s.logger}, nil
}

// Collection wraps a Chroma collection.
type Collection struct {
	col       chroma.Collection
	name      string
	distance  domain.Distance
	dimension int
	timeout   time.Duration
	logger    *slog.Logger
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Upsert(ctx context.Context, docs []domain.Document, vectors [][]float32) error {
	dim, err := vectorstore.ValidateBatch(docs, vectors, c.dimension)
	if err != nil {
		return fmt.Errorf("chroma upsert into %q: %w", c.name, err)
	}
	if len(docs) == 0 {
		return nil
	}
	ids := make([]chroma.DocumentID, len(docs))
	texts := make([]string, len(docs))
	embs := make([]embeddings.Embedding, len(docs))
	for i, doc := range docs {
		ids[i] = chroma.DocumentID(doc.ID)
		texts[i] = doc.Text
		embs[i] = embeddings.NewEmbeddingFromFloat32(vectors[i])
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err = c.col.Upsert(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithEmbeddings(embs...),
	)
	if err != nil {
		return fmt.Errorf("%w: chroma upsert into %q: %v", domain.ErrBackend, c.name, err)
	}
	c.dimension = dim
	c.logger.Debug("chroma documents upserted", "collection", c.name, "count", len(docs))
	return nil
}

func (c *Collection) Query(ctx context.Context, vector []float32, topK int) ([]domain.QueryResult, error) {
	if topK <= 0 {
		return []domain.QueryResult{}, nil
	}
	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []domain.QueryResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.col.Query(ctx,
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chroma.WithNResults(min(topK, n)),
		chroma.WithIncludeQuery(chroma.IncludeDocuments, includeDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: chroma query %q: %v", domain.ErrBackend, c.name, err)
	}

	idGroups := res.GetIDGroups()
	docGroups := res.GetDocumentsGroups()
	distGroups := res.GetDistancesGroups()
	if len(idGroups) == 0 {
		return []domain.QueryResult{}, nil
	}
	ids := idGroups[0]
	results := make([]domain.QueryResult, 0, len(ids))
	for i, id := range ids {
		doc := domain.Document{ID: string(id)}
		if len(docGroups) > 0 && i < len(docGroups[0]) {
			doc.Text = docGroups[0][i].ContentString()
		}
		var d float64
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			d = FromChromaDistance(c.distance, float64(distGroups[0][i]))
		}
		results = append(results, domain.QueryResult{Document: doc, Distance: d})
	}
	return vectorstore.Rank(results, topK), nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	n, err := c.col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: chroma count %q: %v", domain.ErrBackend, c.name, err)
	}
	return n, nil
}

// Space maps a distance to the Chroma HNSW space.
func Space(d domain.Distance) embeddings.DistanceMetric {
	if d == domain.DistanceL2 {
		return embeddings.L2
	}
	return embeddings.COSINE
}

// FromChromaDistance converts a distance reported by Chroma. Its l2 space
// reports squared Euclidean distance.
func FromChromaDistance(d domain.Distance, v float64) float64 {
	if d == domain.DistanceL2 {
		return math.Sqrt(math.Max(v, 0))
	}
	return v
}
