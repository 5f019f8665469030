// Package vectorstore holds the helpers shared by the vector index backends:
// distance metrics, result ranking, batch validation and the BLOB encoding
// used for persisted vectors.
package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"insight/internal/domain"
)

// Distance returns the distance between a and b under metric d.
// Cosine distance of a zero vector is 1.
func Distance(d domain.Distance, a, b []float32) float64 {
	n := min(len(a), len(b))
	switch d {
	case domain.DistanceL2:
		sum := 0.0
		for i := 0; i < n; i++ {
			diff := float64(a[i]) - float64(b[i])
			sum += diff * diff
		}
		return math.Sqrt(sum)
	default:
		return 1 - Cosine(a, b)
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero magnitude.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// Rank orders results by ascending distance, ties by ascending id, and keeps
// at most topK of them. topK <= 0 yields no results.
func Rank(results []domain.QueryResult, topK int) []domain.QueryResult {
	if topK <= 0 || len(results) == 0 {
		return []domain.QueryResult{}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results
}

// ValidateBatch checks an upsert batch. dimension is the collection's vector
// size, or 0 when it is not fixed yet; the batch's dimension is returned.
func ValidateBatch(docs []domain.Document, vectors [][]float32, dimension int) (int, error) {
	if len(docs) != len(vectors) {
		return 0, fmt.Errorf("%w: %d documents but %d vectors", domain.ErrInput, len(docs), len(vectors))
	}
	for i, doc := range docs {
		if doc.ID == "" {
			return 0, fmt.Errorf("%w: document %d has an empty id", domain.ErrInput, i)
		}
		if len(vectors[i]) == 0 {
			return 0, fmt.Errorf("%w: document %q has an empty vector", domain.ErrInput, doc.ID)
		}
		if dimension == 0 {
			dimension = len(vectors[i])
		}
		if len(vectors[i]) != dimension {
			return 0, fmt.Errorf("%w: document %q vector has dimension %d, collection uses %d",
				domain.ErrInput, doc.ID, len(vectors[i]), dimension)
		}
	}
	return dimension, nil
}

// CheckEmbedder fails when a collection recorded for one embedder is opened
// with another. Empty identities match anything.
func CheckEmbedder(collection, stored, requested string) error {
	if stored == "" || requested == "" || stored == requested {
		return nil
	}
	return fmt.Errorf("%w: collection %q was built with embedder %q, configured embedder is %q",
		domain.ErrConfiguration, collection, stored, requested)
}

// EncodeVector encodes vec as little-endian float32 values.
func EncodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeVector decodes a BLOB produced by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vectorstore: invalid vector blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
