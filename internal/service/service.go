// Package service runs the end-to-end pipeline behind every front end:
// index a dataset, then retrieve, summarize and evaluate for a question.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"insight/internal/dataset"
	"insight/internal/domain"
	"insight/internal/evaluator"
	"insight/internal/retrieval"
	"insight/internal/summarizer"
)

// Sentiments are the labels counted in a theme summary, in display order.
var Sentiments = []string{"positive", "neutral", "negative"}

// Options tune Ask.
type Options struct {
	TopK     int
	Evaluate bool
}

// Insight is everything produced for one question.
type Insight struct {
	Query     string
	Documents []string
	Distances []float64
	IDs       []string
	Summary   string
	Report    string
	// Sentiment counts mentions of each label in Summary. It is a rough
	// indicator, not a classifier.
	Sentiment map[string]int

	// Evaluation, filled when enabled.
	Evaluated  bool
	Similarity evaluator.Similarity
	Rubric     evaluator.Rubric
	// RubricErr explains why Rubric is empty.
	RubricErr error

	Elapsed time.Duration
}

// Service wires retrieval, summarization and evaluation together.
type Service struct {
	retriever  *retrieval.Retriever
	summarizer *summarizer.Summarizer
	evaluator  *evaluator.Evaluator
	opts       Options
	logger     *slog.Logger
}

func New(r *retrieval.Retriever, s *summarizer.Summarizer, e *evaluator.Evaluator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = 6
	}
	return &Service{retriever: r, summarizer: s, evaluator: e, opts: opts, logger: logger}
}

// Retriever exposes the underlying retriever.
func (s *Service) Retriever() *retrieval.Retriever { return s.retriever }

// IndexRecords upserts the records and returns how many were written.
func (s *Service) IndexRecords(ctx context.Context, records []dataset.Record) (int, error) {
	ids, texts := dataset.Split(records)
	start := time.Now()
	if err := s.retriever.IndexTexts(ctx, ids, texts); err != nil {
		return 0, err
	}
	s.logger.Info("dataset indexed", "collection", s.retriever.Collection(), "records", len(records), "elapsed", time.Since(start))
	return len(records), nil
}

// Ask answers query. topK <= 0 uses the configured default. Rubric problems
// are reported in Insight.RubricErr instead of failing the call.
func (s *Service) Ask(ctx context.Context, query string, topK int) (*Insight, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInput)
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}
	start := time.Now()
	results, err := s.retriever.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	in := &Insight{
		Query:     query,
		Documents: make([]string, len(results)),
		Distances: make([]float64, len(results)),
		IDs:       make([]string, len(results)),
	}
	for i, r := range results {
		in.Documents[i] = r.Document.Text
		in.Distances[i] = r.Distance
		in.IDs[i] = r.Document.ID
	}
	if len(results) == 0 {
		s.logger.Warn("no documents retrieved", "collection", s.retriever.Collection(), "query", query)
	}

	if in.Summary, err = s.summarizer.Summarize(ctx, in.Documents); err != nil {
		return nil, err
	}
	if in.Report, err = s.summarizer.ExecutiveReport(ctx, in.Summary); err != nil {
		return nil, err
	}
	in.Sentiment = CountSentiment(in.Summary)

	if s.opts.Evaluate && s.evaluator != nil {
		in.Evaluated = true
		if in.Similarity, err = s.evaluator.SemanticSimilarity(ctx, in.Documents, in.Summary); err != nil {
			return nil, err
		}
		in.Rubric, in.RubricErr = s.evaluator.RubricEval(ctx, in.Summary)
		if in.RubricErr != nil && !errors.Is(in.RubricErr, domain.ErrRubricUnavailable) {
			s.logger.Warn("rubric evaluation failed", "error", in.RubricErr)
		}
	}
	in.Elapsed = time.Since(start)
	s.logger.Debug("query answered", "query", query, "documents", len(in.Documents), "elapsed", in.Elapsed)
	return in, nil
}

// CountSentiment counts how often each sentiment label appears in text.
func CountSentiment(text string) map[string]int {
	lower := strings.ToLower(text)
	out := make(map[string]int, len(Sentiments))
	for _, label := range Sentiments {
		out[label] = strings.Count(lower, label)
	}
	return out
}
