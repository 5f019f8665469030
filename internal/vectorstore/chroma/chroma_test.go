package chroma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"insight/internal/domain"
)

// fakeChroma implements the v2 endpoints the store uses for one collection.
type fakeChroma struct {
	mu      sync.Mutex
	space   string
	creates int
	include []string
	nResult int
	ids     []string
	docs    map[string]string
	vecs    map[string][]float32
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{docs: map[string]string{}, vecs: map[string][]float32{}}
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const db = "/api/v2/tenants/default_tenant/databases/default_database/collections"
	col := db + "/col-1"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v2/pre-flight-checks":
		_, _ = w.Write([]byte(`{"max_batch_size":100}`))
	case r.Method == http.MethodPost && r.URL.Path == db:
		var body struct {
			Name     string         `json:"name"`
			Metadata map[string]any `json:"metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.creates == 0 {
			f.space, _ = body.Metadata["hnsw:space"].(string)
		}
		f.creates++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "col-1", "name": body.Name, "tenant": "default_tenant", "database": "default_database",
		})
	case r.Method == http.MethodPost && r.URL.Path == col+"/upsert":
		var body struct {
			IDs        []string    `json:"ids"`
			Documents  []string    `json:"documents"`
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Embeddings) != len(body.IDs) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for i, id := range body.IDs {
			if _, ok := f.vecs[id]; !ok {
				f.ids = append(f.ids, id)
			}
			f.docs[id] = body.Documents[i]
			f.vecs[id] = body.Embeddings[i]
		}
		_, _ = w.Write([]byte(`true`))
	case r.Method == http.MethodGet && r.URL.Path == col+"/count":
		fmt.Fprintf(w, "%d", len(f.ids))
	case r.Method == http.MethodPost && r.URL.Path == col+"/query":
		var body struct {
			QueryEmbeddings [][]float32 `json:"query_embeddings"`
			NResults        int         `json:"n_results"`
			Include         []string    `json:"include"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.QueryEmbeddings) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.include, f.nResult = body.Include, body.NResults
		type hit struct {
			id string
			d  float64
		}
		hits := make([]hit, 0, len(f.ids))
		for _, id := range f.ids {
			hits = append(hits, hit{id, f.distance(body.QueryEmbeddings[0], f.vecs[id])})
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].d < hits[j].d })
		hits = hits[:min(body.NResults, len(hits))]
		ids, docs, dists := []string{}, []string{}, []float64{}
		for _, h := range hits {
			ids, docs, dists = append(ids, h.id), append(docs, f.docs[h.id]), append(dists, h.d)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ids": [][]string{ids}, "documents": [][]string{docs}, "distances": [][]float64{dists},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// distance mimics Chroma: squared Euclidean for l2, 1-cosine otherwise.
func (f *fakeChroma) distance(a, b []float32) float64 {
	var dot, na, nb, sq float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot, na, nb, sq = dot+x*y, na+x*x, nb+y*y, sq+(x-y)*(x-y)
	}
	if f.space == "l2" {
		return sq
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func (f *fakeChroma) hnswSpace() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.space
}

func (f *fakeChroma) queried() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.include, f.nResult
}

func openFake(t *testing.T, dist domain.Distance) (*fakeChroma, domain.Collection) {
	t.Helper()
	fake := newFakeChroma()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := NewStore(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	c, err := s.Collection(context.Background(), "feedback", domain.CollectionOptions{Distance: dist})
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	return fake, c
}

func TestUpsertQueryCount(t *testing.T) {
	fake, c := openFake(t, domain.DistanceCosine)
	ctx := context.Background()
	if got := fake.hnswSpace(); got != "cosine" {
		t.Fatalf("hnsw space = %q, want cosine", got)
	}
	if res, err := c.Query(ctx, []float32{1, 0}, 3); err != nil || len(res) != 0 {
		t.Fatalf("Query on empty collection = %v, %v", res, err)
	}

	docs := []domain.Document{{ID: "a", Text: "slow checkout"}, {ID: "b", Text: "great support"}, {ID: "c", Text: "pricey"}}
	vecs := [][]float32{{1, 0}, {0, 1}, {0.8, 0.6}}
	if err := c.Upsert(ctx, docs, vecs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.Upsert(ctx, docs, vecs); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if n, err := c.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3 after idempotent upsert", n, err)
	}

	res, err := c.Query(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res) != 2 || res[0].Document.ID != "a" || res[1].Document.ID != "c" {
		t.Fatalf("Query order = %+v, want a then c", res)
	}
	if res[0].Document.Text != "slow checkout" {
		t.Fatalf("document text = %q", res[0].Document.Text)
	}
	if math.Abs(res[0].Distance) > 1e-6 || math.Abs(res[1].Distance-0.2) > 1e-6 {
		t.Fatalf("distances = %v, %v; want 0 and 0.2", res[0].Distance, res[1].Distance)
	}
	include, _ := fake.queried()
	if !strings.Contains(strings.Join(include, ","), "distances") {
		t.Fatalf("query include = %v, want distances requested", include)
	}
}

func TestQueryClampsToCollectionSize(t *testing.T) {
	fake, c := openFake(t, domain.DistanceCosine)
	ctx := context.Background()
	if err := c.Upsert(ctx, []domain.Document{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	res, err := c.Query(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if _, n := fake.queried(); n != 2 || len(res) != 2 {
		t.Fatalf("n_results = %d, results = %d; want both 2", n, len(res))
	}
	if res, _ := c.Query(ctx, []float32{1, 0}, 0); len(res) != 0 {
		t.Fatalf("topK 0 returned %d results", len(res))
	}
}

func TestL2ReportsEuclideanDistance(t *testing.T) {
	fake, c := openFake(t, domain.DistanceL2)
	ctx := context.Background()
	if got := fake.hnswSpace(); got != "l2" {
		t.Fatalf("hnsw space = %q, want l2", got)
	}
	if err := c.Upsert(ctx, []domain.Document{{ID: "far", Text: "x"}}, [][]float32{{3, 4}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	res, err := c.Query(ctx, []float32{0, 0}, 1)
	if err != nil || len(res) != 1 {
		t.Fatalf("Query = %v, %v", res, err)
	}
	if math.Abs(res[0].Distance-5) > 1e-6 {
		t.Fatalf("distance = %v, want 5", res[0].Distance)
	}
}

func TestUpsertRejectsBadBatch(t *testing.T) {
	_, c := openFake(t, domain.DistanceCosine)
	err := c.Upsert(context.Background(), []domain.Document{{ID: "a", Text: "x"}}, nil)
	if !errors.Is(err, domain.ErrInput) {
		t.Fatalf("mismatched batch = %v, want ErrInput", err)
	}
}

func TestSpace(t *testing.T) {
	if Space(domain.DistanceCosine) != embeddings.COSINE {
		t.Fatalf("cosine maps to %v", Space(domain.DistanceCosine))
	}
	if Space(domain.DistanceL2) != embeddings.L2 {
		t.Fatalf("l2 maps to %v", Space(domain.DistanceL2))
	}
}

func TestFromChromaDistance(t *testing.T) {
	if got := FromChromaDistance(domain.DistanceL2, 25); math.Abs(got-5) > 1e-9 {
		t.Fatalf("squared l2 25 -> %v, want 5", got)
	}
	if got := FromChromaDistance(domain.DistanceCosine, 0.3); got != 0.3 {
		t.Fatalf("cosine distance changed: %v", got)
	}
}

func TestCollectionRejectsBadName(t *testing.T) {
	s, err := NewStore(Config{URL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	_, err = s.Collection(context.Background(), "a", domain.CollectionOptions{})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("bad name = %v, want ErrConfiguration", err)
	}
}
