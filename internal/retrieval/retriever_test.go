package retrieval

import (
	"context"
	"errors"
	"testing"

	"insight/internal/domain"
	"insight/internal/embedding/hashing"
	"insight/internal/vectorstore/memory"
	"insight/internal/vectorstore/sqlite"
)

type failingEmbedder struct{ domain.Embedder }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, domain.ErrBackend
}

func newRetriever(t *testing.T) *Retriever {
	t.Helper()
	r, err := New(context.Background(), hashing.NewEmbedder(hashing.Config{}), memory.NewStore(), Options{Collection: "feedback"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestQueryFindsRelevantText(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t)
	if err := r.IndexTexts(ctx, []string{"0", "1"}, []string{"good service", "bad pricing"}); err != nil {
		t.Fatalf("IndexTexts: %v", err)
	}
	docs, dists, err := r.Query(ctx, "pricing complaints", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 1 || docs[0] != "bad pricing" {
		t.Fatalf("Query = %v, want [bad pricing]", docs)
	}
	if len(dists) != len(docs) {
		t.Fatalf("len(dists) = %d, len(docs) = %d", len(dists), len(docs))
	}
}

func TestQueryOrderingAndClamp(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t)
	texts := []string{"slow checkout", "friendly staff", "checkout crashed twice", "great coffee"}
	ids := []string{"0", "1", "2", "3"}
	if err := r.IndexTexts(ctx, ids, texts); err != nil {
		t.Fatalf("IndexTexts: %v", err)
	}
	docs, dists, err := r.Query(ctx, "checkout problems", 50)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != len(texts) {
		t.Fatalf("got %d results, want clamp to %d", len(docs), len(texts))
	}
	for i := 1; i < len(dists); i++ {
		if dists[i] < dists[i-1] {
			t.Fatalf("distances not ascending: %v", dists)
		}
	}
}

func TestIndexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t)
	for i := 0; i < 2; i++ {
		if err := r.IndexTexts(ctx, []string{"0", "1"}, []string{"a", "b"}); err != nil {
			t.Fatalf("IndexTexts: %v", err)
		}
	}
	if n, _ := r.Count(ctx); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
}

func TestIndexEmptyAndMismatched(t *testing.T) {
	ctx := context.Background()
	r := newRetriever(t)
	if err := r.IndexTexts(ctx, nil, nil); err != nil {
		t.Fatalf("empty IndexTexts: %v", err)
	}
	if err := r.IndexTexts(ctx, []string{"0"}, []string{"a", "b"}); !errors.Is(err, domain.ErrInput) {
		t.Fatalf("mismatched IndexTexts = %v, want ErrInput", err)
	}
}

func TestQueryEmptyCollection(t *testing.T) {
	docs, dists, err := newRetriever(t).Query(context.Background(), "anything", 5)
	if err != nil || len(docs) != 0 || len(dists) != 0 {
		t.Fatalf("Query on empty = %v %v %v", docs, dists, err)
	}
}

func TestEmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	emb := failingEmbedder{hashing.NewEmbedder(hashing.Config{})}
	r, err := New(ctx, emb, store, Options{Collection: "feedback"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.IndexTexts(ctx, []string{"0"}, []string{"x"}); !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("IndexTexts = %v, want ErrBackend", err)
	}
	if n, _ := r.Count(ctx); n != 0 {
		t.Fatalf("Count = %d after failed embed, want 0", n)
	}
}

func TestPersistsAcrossRetrievers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := hashing.NewEmbedder(hashing.Config{})

	s1, err := sqlite.Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r1, err := New(ctx, emb, s1, Options{Collection: "feedback"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r1.IndexTexts(ctx, []string{"0", "1"}, []string{"good service", "bad pricing"}); err != nil {
		t.Fatalf("IndexTexts: %v", err)
	}
	_ = s1.Close()

	s2, err := sqlite.Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	r2, err := New(ctx, emb, s2, Options{Collection: "feedback"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	docs, _, err := r2.Query(ctx, "pricing complaints", 1)
	if err != nil || len(docs) != 1 || docs[0] != "bad pricing" {
		t.Fatalf("Query after reopen = %v, %v", docs, err)
	}
}

func TestDimensionChangeFailsAtOpen(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	wide := hashing.NewEmbedder(hashing.Config{Model: "hashing-bow", Dimension: 128})
	r, err := New(ctx, wide, store, Options{Collection: "feedback"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.IndexTexts(ctx, []string{"0"}, []string{"late delivery"}); err != nil {
		t.Fatalf("IndexTexts: %v", err)
	}
	narrow := hashing.NewEmbedder(hashing.Config{Model: "hashing-bow", Dimension: 64})
	if _, err := New(ctx, narrow, store, Options{Collection: "feedback"}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("reopen with another width = %v, want ErrConfiguration", err)
	}
}
