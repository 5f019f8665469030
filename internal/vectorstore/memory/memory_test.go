package memory

import (
	"context"
	"errors"
	"testing"

	"insight/internal/domain"
)

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, err := NewStore().Collection(ctx, "feedback", domain.CollectionOptions{})
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	docs := []domain.Document{{ID: "0", Text: "slow app"}, {ID: "1", Text: "great support"}}
	vecs := [][]float32{{1, 0}, {0, 1}}
	for i := 0; i < 2; i++ {
		if err := c.Upsert(ctx, docs, vecs); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}
	if n, _ := c.Count(ctx); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}

	if err := c.Upsert(ctx, []domain.Document{{ID: "0", Text: "fast app"}}, [][]float32{{0.9, 0.1}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	res, err := c.Query(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res[0].Document.Text != "fast app" {
		t.Fatalf("replacement not visible: %+v", res[0])
	}
}

func TestQueryOrderingAndClamp(t *testing.T) {
	ctx := context.Background()
	c, _ := NewStore().Collection(ctx, "feedback", domain.CollectionOptions{})
	_ = c.Upsert(ctx,
		[]domain.Document{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}},
		[][]float32{{0, 1}, {1, 0}})

	res, err := c.Query(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2 (clamped)", len(res))
	}
	if res[0].Document.ID != "b" || res[0].Distance > res[1].Distance {
		t.Fatalf("results not ordered by distance: %+v", res)
	}
}

func TestQueryEmptyCollection(t *testing.T) {
	ctx := context.Background()
	c, _ := NewStore().Collection(ctx, "empty-one", domain.CollectionOptions{})
	res, err := c.Query(ctx, []float32{1, 0}, 3)
	if err != nil || len(res) != 0 {
		t.Fatalf("Query on empty = %v, %v", res, err)
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	c, _ := NewStore().Collection(ctx, "feedback", domain.CollectionOptions{})
	_ = c.Upsert(ctx, []domain.Document{{ID: "a"}}, [][]float32{{1, 0}})
	err := c.Upsert(ctx, []domain.Document{{ID: "b"}}, [][]float32{{1, 0, 0}})
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("Upsert with wrong dimension = %v, want ErrInput", err)
	}
}

func TestCollectionRejectsOtherEmbedder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if _, err := s.Collection(ctx, "feedback", domain.CollectionOptions{Embedder: "local:a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.Collection(ctx, "feedback", domain.CollectionOptions{Embedder: "remote:b"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("reopen with other embedder = %v, want ErrConfiguration", err)
	}
}

func TestCollectionRejectsBadName(t *testing.T) {
	_, err := NewStore().Collection(context.Background(), "x", domain.CollectionOptions{})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("bad name = %v, want ErrConfiguration", err)
	}
}
