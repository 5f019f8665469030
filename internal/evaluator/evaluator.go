// Package evaluator scores a summary against the evidence it was built from:
// embedding similarity to the retrieved documents, and an optional rubric
// graded by a generation backend.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"insight/internal/domain"
	"insight/internal/summarizer"
	"insight/internal/vectorstore"
)

// DefaultRubricTokens is the generation budget for rubric grading.
const DefaultRubricTokens = 200

// Similarity summarises the cosine similarity between a summary and each
// reference text. The zero value is returned for zero references.
type Similarity struct {
	MeanSimilarity float64 `json:"mean_similarity"`
	MaxSimilarity  float64 `json:"max_similarity"`
	References     int     `json:"references"`
}

// Rubric is the parsed grading object. When the model output is not a JSON
// object (or fails the schema), it holds the text under "raw".
type Rubric map[string]any

// Raw returns the unparsed model output and whether the rubric fell back to it.
func (r Rubric) Raw() (string, bool) {
	if len(r) != 1 {
		return "", false
	}
	s, ok := r["raw"].(string)
	return s, ok
}

type Config struct {
	// RubricPrompt sees {{.Summary}}.
	RubricPrompt string
	// RubricSchema is an optional JSON Schema the rubric object must satisfy.
	RubricSchema string
	RubricTokens int
	Logger       *slog.Logger
}

type rubricData struct{ Summary string }

// Evaluator computes similarity with an embedder and grades rubrics with an
// optional generator.
type Evaluator struct {
	embedder     domain.Embedder
	gen          domain.Generator
	rubric       *template.Template
	schema       *jsonschema.Schema
	rubricTokens int
	logger       *slog.Logger
}

// New prepares the evaluator. gen may be nil, in which case RubricEval
// reports domain.ErrRubricUnavailable.
func New(embedder domain.Embedder, gen domain.Generator, cfg Config) (*Evaluator, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: evaluator needs an embedder", domain.ErrConfiguration)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{embedder: embedder, gen: gen, rubricTokens: cfg.RubricTokens, logger: logger}
	if e.rubricTokens <= 0 {
		e.rubricTokens = DefaultRubricTokens
	}
	if gen != nil {
		t, err := summarizer.Parse("eval_rubric", cfg.RubricPrompt)
		if err != nil {
			return nil, err
		}
		e.rubric = t
	}
	if strings.TrimSpace(cfg.RubricSchema) != "" {
		sch, err := jsonschema.CompileString("rubric_schema.json", cfg.RubricSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: prompts.rubric_schema: %v", domain.ErrConfiguration, err)
		}
		e.schema = sch
	}
	return e, nil
}

// SemanticSimilarity embeds the references and the summary in one batch and
// reports the mean and maximum cosine similarity, clamped to [-1, 1].
func (e *Evaluator) SemanticSimilarity(ctx context.Context, refs []string, summary string) (Similarity, error) {
	if len(refs) == 0 {
		return Similarity{}, nil
	}
	texts := append(append(make([]string, 0, len(refs)+1), refs...), summary)
	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return Similarity{}, fmt.Errorf("similarity: %w", err)
	}
	if len(vecs) != len(texts) {
		return Similarity{}, fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrBackend, len(vecs), len(texts))
	}
	sum := vecs[len(vecs)-1]
	out := Similarity{MaxSimilarity: math.Inf(-1), References: len(refs)}
	total := 0.0
	for _, ref := range vecs[:len(refs)] {
		s := vectorstore.Cosine(ref, sum)
		total += s
		out.MaxSimilarity = math.Max(out.MaxSimilarity, s)
	}
	out.MeanSimilarity = clamp(total / float64(len(refs)))
	out.MaxSimilarity = clamp(out.MaxSimilarity)
	return out, nil
}

// RubricEval asks the generator to grade summary. Output that is not a JSON
// object, or does not satisfy the schema, is returned as {"raw": text}.
func (e *Evaluator) RubricEval(ctx context.Context, summary string) (Rubric, error) {
	if e.gen == nil {
		return nil, domain.ErrRubricUnavailable
	}
	prompt, err := summarizer.Render(e.rubric, rubricData{Summary: summary})
	if err != nil {
		return nil, err
	}
	out, err := e.gen.Generate(ctx, prompt, e.rubricTokens)
	if err != nil {
		return nil, fmt.Errorf("rubric evaluation: %w", err)
	}
	obj, ok := ExtractJSON(out)
	if !ok {
		e.logger.Debug("rubric output is not a JSON object", "backend", e.gen.Name())
		return Rubric{"raw": out}, nil
	}
	if e.schema != nil {
		if err := e.schema.Validate(obj); err != nil {
			e.logger.Warn("rubric output fails schema", "error", err)
			return Rubric{"raw": out}, nil
		}
	}
	return Rubric(obj), nil
}

// ExtractJSON returns the first JSON object embedded in text, tolerating
// markdown code fences and surrounding prose.
func ExtractJSON(text string) (map[string]any, bool) {
	text = strings.ReplaceAll(text, "```json", "```")
	text = strings.ReplaceAll(text, "```", "\n")
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var obj map[string]any
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&obj); err == nil && obj != nil {
			return obj, true
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, false
}

func clamp(v float64) float64 { return math.Max(-1, math.Min(1, v)) }
