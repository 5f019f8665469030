package service

import (
	"context"
	"errors"
	"testing"

	"insight/internal/dataset"
	"insight/internal/domain"
	"insight/internal/embedding/hashing"
	"insight/internal/evaluator"
	"insight/internal/generation/extractive"
	"insight/internal/retrieval"
	"insight/internal/summarizer"
	"insight/internal/vectorstore/memory"
)

type failingGenerator struct{}

func (failingGenerator) Name() string { return "failing" }
func (failingGenerator) Generate(context.Context, string, int) (string, error) {
	return "", domain.ErrRateLimit
}

func newService(t *testing.T, rubricGen domain.Generator, evaluate bool) *Service {
	t.Helper()
	ctx := context.Background()
	emb := hashing.NewEmbedder(hashing.Config{})
	r, err := retrieval.New(ctx, emb, memory.NewStore(), retrieval.Options{Collection: "feedback"})
	if err != nil {
		t.Fatalf("retrieval.New: %v", err)
	}
	gen := extractive.NewGenerator("")
	s, err := summarizer.New(gen, summarizer.Config{
		SummaryPrompt:   "Summarize.\n\nText:\n{{.Documents}}",
		ExecutivePrompt: "Report.\n\nThemes:\n{{.Summary}}",
	})
	if err != nil {
		t.Fatalf("summarizer.New: %v", err)
	}
	e, err := evaluator.New(emb, rubricGen, evaluator.Config{RubricPrompt: "Grade.\n\nSummary:\n{{.Summary}}"})
	if err != nil {
		t.Fatalf("evaluator.New: %v", err)
	}
	return New(r, s, e, Options{TopK: 2, Evaluate: evaluate}, nil)
}

var records = []dataset.Record{
	{ID: "0", Text: "The pricing is too high and negative for us."},
	{ID: "1", Text: "Support was friendly and positive."},
	{ID: "2", Text: "Pricing tiers are confusing."},
}

func TestAskEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, extractive.NewGenerator(""), true)
	n, err := svc.IndexRecords(ctx, records)
	if err != nil || n != 3 {
		t.Fatalf("IndexRecords = %d, %v", n, err)
	}
	in, err := svc.Ask(ctx, "pricing complaints", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(in.Documents) != 2 || len(in.Distances) != len(in.Documents) || len(in.IDs) != len(in.Documents) {
		t.Fatalf("documents %d distances %d ids %d", len(in.Documents), len(in.Distances), len(in.IDs))
	}
	if in.Summary == "" || in.Report == "" {
		t.Fatalf("empty summary or report: %+v", in)
	}
	if !in.Evaluated || in.Similarity.References != 2 {
		t.Fatalf("evaluation missing: %+v", in.Similarity)
	}
	if in.Rubric == nil || in.RubricErr != nil {
		t.Fatalf("rubric = %v, err = %v", in.Rubric, in.RubricErr)
	}
	if _, ok := in.Rubric.Raw(); !ok {
		t.Fatalf("extractive rubric output should fall back to raw: %v", in.Rubric)
	}
}

func TestAskWithoutRubricBackend(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil, true)
	_, _ = svc.IndexRecords(ctx, records)
	in, err := svc.Ask(ctx, "pricing", 1)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !errors.Is(in.RubricErr, domain.ErrRubricUnavailable) {
		t.Fatalf("RubricErr = %v, want ErrRubricUnavailable", in.RubricErr)
	}
}

func TestAskRubricFailureDegrades(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, failingGenerator{}, true)
	_, _ = svc.IndexRecords(ctx, records)
	in, err := svc.Ask(ctx, "pricing", 1)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !errors.Is(in.RubricErr, domain.ErrRateLimit) {
		t.Fatalf("RubricErr = %v, want ErrRateLimit", in.RubricErr)
	}
}

func TestAskEvaluationDisabled(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil, false)
	_, _ = svc.IndexRecords(ctx, records)
	in, err := svc.Ask(ctx, "support", 1)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if in.Evaluated || in.Rubric != nil {
		t.Fatalf("evaluation ran while disabled")
	}
}

func TestAskEmptyQuery(t *testing.T) {
	if _, err := newService(t, nil, false).Ask(context.Background(), "  ", 1); !errors.Is(err, domain.ErrInput) {
		t.Fatalf("Ask(empty) = %v, want ErrInput", err)
	}
}

func TestCountSentiment(t *testing.T) {
	got := CountSentiment("Positive feedback on support; negative on pricing, negative on delivery.")
	if got["positive"] != 1 || got["negative"] != 2 || got["neutral"] != 0 {
		t.Fatalf("CountSentiment = %v", got)
	}
}
