package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"insight/internal/evaluator"
)

var barColors = map[string]lipgloss.Color{
	"positive": lipgloss.Color("10"),
	"neutral":  lipgloss.Color("11"),
	"negative": lipgloss.Color("9"),
}

// SentimentChart renders one horizontal bar per label, scaled so the largest
// count spans width cells. Labels missing from counts show as zero.
func SentimentChart(counts map[string]int, labels []string, width int) string {
	if width < 1 {
		width = 1
	}
	peak, total, pad := 0, 0, 0
	for _, l := range labels {
		peak = max(peak, counts[l])
		total += counts[l]
		pad = max(pad, len(l))
	}
	lines := make([]string, 0, len(labels))
	for _, l := range labels {
		n := counts[l]
		cells := 0
		if peak > 0 {
			cells = n * width / peak
		}
		if n > 0 && cells == 0 {
			cells = 1
		}
		share := 0.0
		if total > 0 {
			share = 100 * float64(n) / float64(total)
		}
		bar := lipgloss.NewStyle().Foreground(barColors[l]).Render(strings.Repeat("█", cells))
		lines = append(lines, fmt.Sprintf("%-*s %s %d (%.0f%%)", pad, l, bar, n, share))
	}
	return strings.Join(lines, "\n")
}

// FormatRubric renders the rubric as sorted key=value pairs, or the raw text.
func FormatRubric(r evaluator.Rubric) string {
	if raw, ok := r.Raw(); ok {
		return raw
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		v, err := json.Marshal(r[k])
		if err != nil {
			v = []byte(fmt.Sprint(r[k]))
		}
		parts[i] = k + "=" + string(v)
	}
	return strings.Join(parts, " ")
}
