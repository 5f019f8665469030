package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"insight/internal/domain"
)

type call struct {
	prompt    string
	maxTokens int
}

type fakeGenerator struct {
	calls []call
	reply string
	err   error
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	f.calls = append(f.calls, call{prompt, maxTokens})
	return f.reply, f.err
}

func newSummarizer(t *testing.T, gen domain.Generator) *Summarizer {
	t.Helper()
	s, err := New(gen, Config{
		SummaryPrompt:   "Summarize themes.\n\nText:\n{{.Documents}}",
		ExecutivePrompt: "Write a report.\n\nThemes:\n{{.Summary}}",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSummarizeRendersDocuments(t *testing.T) {
	gen := &fakeGenerator{reply: "Pricing dominates."}
	out, err := newSummarizer(t, gen).Summarize(context.Background(), []string{"too expensive", "price hike"})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "Pricing dominates." {
		t.Fatalf("Summarize = %q", out)
	}
	want := "Summarize themes.\n\nText:\ntoo expensive\n\nprice hike"
	if len(gen.calls) != 1 || gen.calls[0].prompt != want {
		t.Fatalf("prompt = %q, want %q", gen.calls[0].prompt, want)
	}
	if gen.calls[0].maxTokens != DefaultSummaryTokens {
		t.Fatalf("budget = %d, want %d", gen.calls[0].maxTokens, DefaultSummaryTokens)
	}
}

func TestSummarizeEmptyStillCallsBackend(t *testing.T) {
	gen := &fakeGenerator{reply: "Nothing to report."}
	if _, err := newSummarizer(t, gen).Summarize(context.Background(), nil); err != nil {
		t.Fatalf("Summarize(nil): %v", err)
	}
	if len(gen.calls) != 1 || !strings.HasSuffix(gen.calls[0].prompt, "Text:\n") {
		t.Fatalf("calls = %+v", gen.calls)
	}
}

func TestExecutiveReport(t *testing.T) {
	gen := &fakeGenerator{reply: "Cut prices."}
	out, err := newSummarizer(t, gen).ExecutiveReport(context.Background(), "Pricing dominates.")
	if err != nil || out != "Cut prices." {
		t.Fatalf("ExecutiveReport = %q, %v", out, err)
	}
	if gen.calls[0].prompt != "Write a report.\n\nThemes:\nPricing dominates." || gen.calls[0].maxTokens != DefaultExecutiveTokens {
		t.Fatalf("call = %+v", gen.calls[0])
	}
}

func TestBackendErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{err: domain.ErrRateLimit}
	_, err := newSummarizer(t, gen).Summarize(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Fatalf("Summarize = %v, want ErrRateLimit", err)
	}
}

func TestBadTemplateIsConfigurationError(t *testing.T) {
	_, err := New(&fakeGenerator{}, Config{SummaryPrompt: "{{.Documents", ExecutivePrompt: "ok"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("New = %v, want ErrConfiguration", err)
	}
	_, err = New(&fakeGenerator{}, Config{SummaryPrompt: "ok"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("New with empty executive prompt = %v, want ErrConfiguration", err)
	}
}

func TestUnknownFieldFailsAtRender(t *testing.T) {
	s, err := New(&fakeGenerator{reply: "x"}, Config{SummaryPrompt: "{{.Nope}}", ExecutivePrompt: "ok"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Summarize(context.Background(), nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Summarize = %v, want ErrConfiguration", err)
	}
}
