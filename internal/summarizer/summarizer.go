// Package summarizer turns retrieved feedback into a theme summary and an
// executive report using configurable prompt templates.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"insight/internal/domain"
)

// Default token budgets for the two generation steps.
const (
	DefaultSummaryTokens   = 400
	DefaultExecutiveTokens = 240
)

// Config holds the prompt templates and budgets.
// SummaryPrompt sees {{.Documents}}; ExecutivePrompt sees {{.Summary}}.
type Config struct {
	SummaryPrompt   string
	ExecutivePrompt string
	SummaryTokens   int
	ExecutiveTokens int
	Logger          *slog.Logger
}

type summaryData struct{ Documents string }

type executiveData struct{ Summary string }

// Summarizer renders prompts and delegates to a generation backend.
type Summarizer struct {
	gen             domain.Generator
	summary         *template.Template
	executive       *template.Template
	summaryTokens   int
	executiveTokens int
	logger          *slog.Logger
}

// New parses both templates. A template that does not parse is a
// configuration error.
func New(gen domain.Generator, cfg Config) (*Summarizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: summarizer needs a generation backend", domain.ErrConfiguration)
	}
	summary, err := parse("summary_prompt", cfg.SummaryPrompt)
	if err != nil {
		return nil, err
	}
	executive, err := parse("executive_prompt", cfg.ExecutivePrompt)
	if err != nil {
		return nil, err
	}
	if cfg.SummaryTokens <= 0 {
		cfg.SummaryTokens = DefaultSummaryTokens
	}
	if cfg.ExecutiveTokens <= 0 {
		cfg.ExecutiveTokens = DefaultExecutiveTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		gen:             gen,
		summary:         summary,
		executive:       executive,
		summaryTokens:   cfg.SummaryTokens,
		executiveTokens: cfg.ExecutiveTokens,
		logger:          logger,
	}, nil
}

func parse(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: prompts.%s is empty", domain.ErrConfiguration, name)
	}
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: prompts.%s: %v", domain.ErrConfiguration, name, err)
	}
	return t, nil
}

// Render executes a prompt template.
func Render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: render %s: %v", domain.ErrConfiguration, t.Name(), err)
	}
	return b.String(), nil
}

// Parse compiles a prompt template. Empty or unparsable text is a
// configuration error.
func Parse(name, text string) (*template.Template, error) { return parse(name, text) }

// Summarize joins the documents with blank lines and asks for a theme summary.
// An empty document list still produces a prompt and a backend call.
func (s *Summarizer) Summarize(ctx context.Context, docs []string) (string, error) {
	prompt, err := Render(s.summary, summaryData{Documents: strings.Join(docs, "\n\n")})
	if err != nil {
		return "", err
	}
	start := time.Now()
	out, err := s.gen.Generate(ctx, prompt, s.summaryTokens)
	if err != nil {
		return "", fmt.Errorf("summarize %d documents: %w", len(docs), err)
	}
	s.logger.Debug("summary generated", "backend", s.gen.Name(), "documents", len(docs), "elapsed", time.Since(start))
	return out, nil
}

// ExecutiveReport condenses a theme summary into a short report.
func (s *Summarizer) ExecutiveReport(ctx context.Context, summary string) (string, error) {
	prompt, err := Render(s.executive, executiveData{Summary: summary})
	if err != nil {
		return "", err
	}
	start := time.Now()
	out, err := s.gen.Generate(ctx, prompt, s.executiveTokens)
	if err != nil {
		return "", fmt.Errorf("executive report: %w", err)
	}
	s.logger.Debug("executive report generated", "backend", s.gen.Name(), "elapsed", time.Since(start))
	return out, nil
}
