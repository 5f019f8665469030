// Package extractive is the on-process generation backend. It answers a
// prompt by selecting the most representative sentences of the material the
// prompt carries, ranked by normalised word frequency.
package extractive

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"insight/internal/domain"
	"insight/internal/textutil"
)

// DefaultModel names the sentence ranker recorded in Name.
const DefaultModel = "frequency-ranker"

// Generator ranks sentences by word frequency (stopwords filtered).
type Generator struct {
	model string
}

// NewGenerator creates a frequency-based sentence ranker.
func NewGenerator(model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{model: model}
}

func (g *Generator) Name() string { return "local:" + g.model }

// Generate returns the best sentences of the prompt body, in their original
// order, within maxTokens words. The body is whatever follows the last
// heading line (a line ending in ':'); without one the whole prompt is used.
func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sentences := textutil.Sentences(body(prompt))
	if len(sentences) == 0 {
		sentences = withoutHeadings(textutil.Sentences(prompt))
	}
	if len(sentences) == 0 {
		return "", fmt.Errorf("%w: prompt has no text to summarize", domain.ErrInput)
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return strings.Join(selectSentences(sentences, maxTokens), " "), nil
}

func body(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if isHeading(lines[i]) {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return prompt
}

func isHeading(line string) bool {
	return strings.HasSuffix(strings.TrimSpace(line), ":")
}

func withoutHeadings(sentences []string) []string {
	out := sentences[:0]
	for _, s := range sentences {
		if !isHeading(s) {
			out = append(out, s)
		}
	}
	return out
}

// selectSentences picks sentences by descending score while they fit the
// word budget. The best sentence is always kept, truncated when needed.
func selectSentences(sentences []string, budget int) []string {
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range textutil.Tokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		s := 0.0
		toks := textutil.Tokens(sent)
		for _, tok := range toks {
			s += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			s /= math.Sqrt(l)
		}
		scores[i] = pair{i, s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	var selected []int
	used := 0
	for _, p := range scores {
		n := len(strings.Fields(sentences[p.idx]))
		if used+n > budget {
			continue
		}
		selected = append(selected, p.idx)
		used += n
	}
	if len(selected) == 0 {
		words := strings.Fields(sentences[scores[0].idx])
		return []string{strings.Join(words[:min(budget, len(words))], " ")}
	}
	// Keep original order among selected
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return out
}
