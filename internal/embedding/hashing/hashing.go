package hashing

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"insight/internal/textutil"
)

// DefaultDimension matches the width of common small sentence encoders.
const DefaultDimension = 384

// Embedder is an on-process feature-hashing text encoder.
// Tokens are hashed into a fixed number of signed buckets, weighted by
// sublinear term frequency and L2-normalised. Unlike a TF-IDF vectorizer it
// needs no corpus preparation, so vectors stay comparable across restarts.
type Embedder struct {
	model     string
	dimension int
}

// Config configures the hashing encoder.
type Config struct {
	// Model is the identifier recorded with collections built by this encoder.
	Model     string
	Dimension int
}

// NewEmbedder creates a ready-to-use hashing encoder.
func NewEmbedder(cfg Config) *Embedder {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Model == "" {
		cfg.Model = "hashing-bow"
	}
	return &Embedder{model: cfg.Model, dimension: cfg.Dimension}
}

// Name returns the identity of this encoder and its width, e.g.
// "local:hashing-bow@384". Vectors of different widths never share a collection.
func (e *Embedder) Name() string { return "local:" + e.model + "@" + strconv.Itoa(e.dimension) }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes one vector per text. Empty text yields a zero vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *Embedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimension)
	tf := make(map[string]int)
	for _, tok := range features(text) {
		tf[tok]++
	}
	if len(tf) == 0 {
		return vec
	}
	acc := make([]float64, e.dimension)
	for tok, count := range tf {
		h := xxhash.Sum64String(tok)
		idx := int(h % uint64(e.dimension))
		w := 1 + math.Log(float64(count))
		if h>>63 == 1 {
			w = -w
		}
		acc[idx] += w
	}
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// features picks the tokens to hash. Stopwords are dropped unless that leaves
// nothing, and text without any word characters hashes as a single feature.
func features(text string) []string {
	if toks := textutil.Tokens(text); len(toks) > 0 {
		return toks
	}
	if words := textutil.Words(text); len(words) > 0 {
		return words
	}
	if trimmed := strings.ToLower(strings.TrimSpace(text)); trimmed != "" {
		return []string{trimmed}
	}
	return nil
}
