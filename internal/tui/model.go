package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"insight/internal/dataset"
	"insight/internal/service"
	"insight/internal/textutil"
)

// Port is the TUI-facing subset of the insight service.
type Port interface {
	IndexRecords(ctx context.Context, records []dataset.Record) (int, error)
	Ask(ctx context.Context, query string, topK int) (*service.Insight, error)
}

// Options configure the shell.
type Options struct {
	TopK int
	// Records are re-indexed on ctrl+r. Nil disables refresh.
	Records []dataset.Record
	// Timeout bounds one question or refresh. Zero means no limit.
	Timeout time.Duration
	Title   string
}

type askDoneMsg struct {
	insight *service.Insight
	err     error
}

type indexDoneMsg struct {
	count int
	err   error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service  Port
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	insight  *service.Insight
	status   string
	cursor   int
	busy     bool
	ready    bool
	width    int
}

// New creates a new TUI model instance.
func New(svc Port, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, e.g. Summarize complaints about pricing"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if opts.Title == "" {
		opts.Title = "Feedback Insight Assistant"
	}
	status := "Type a question and press Enter."
	if len(opts.Records) > 0 {
		status = fmt.Sprintf("%d records loaded. Type a question, ctrl+r to re-index.", len(opts.Records))
	}
	return Model{
		service:  svc,
		opts:     opts,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   status,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and pipeline events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case askDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.insight = msg.insight
		m.cursor = 0
		m.status = fmt.Sprintf("%d examples for %q in %s", len(msg.insight.Documents), msg.insight.Query, msg.insight.Elapsed.Round(time.Millisecond))
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case indexDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Index error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Indexed %d records.", msg.count)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Answering %q...", q)
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "ctrl+r":
			if m.busy || len(m.opts.Records) == 0 {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Re-indexing %d records...", len(m.opts.Records))
			return m, tea.Batch(m.reindex(), m.spinner.Tick)
		case "down":
			if m.insight != nil && len(m.insight.Documents) > 0 {
				m.cursor = (m.cursor + 1) % len(m.insight.Documents)
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		case "up":
			if m.insight != nil && len(m.insight.Documents) > 0 {
				m.cursor = (m.cursor - 1 + len(m.insight.Documents)) % len(m.insight.Documents)
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func opContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

func (m Model) ask(q string) tea.Cmd {
	svc, topK, timeout := m.service, m.opts.TopK, m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := opContext(timeout)
		defer cancel()
		in, err := svc.Ask(ctx, q, topK)
		return askDoneMsg{insight: in, err: err}
	}
}

func (m Model) reindex() tea.Cmd {
	svc, records, timeout := m.service, m.opts.Records, m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := opContext(timeout)
		defer cancel()
		n, err := svc.IndexRecords(ctx, records)
		return indexDoneMsg{count: n, err: err}
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render(m.opts.Title)
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		resultBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func (m Model) renderContent() string {
	in := m.insight
	if in == nil {
		return "No results yet."
	}
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Retrieved examples") + "\n")
	if len(in.Documents) == 0 {
		b.WriteString("No documents in the collection.\n")
	} else {
		b.WriteString(dimStyle.Render(fmt.Sprintf("Example %d/%d  distance=%.3f  (up/down to cycle)",
			m.cursor+1, len(in.Documents), in.Distances[m.cursor])) + "\n")
		b.WriteString(highlightBestSentence(in.Documents[m.cursor], in.Query) + "\n")
	}
	b.WriteString("\n" + sectionStyle.Render("Theme summary") + "\n" + in.Summary + "\n")
	b.WriteString("\n" + sectionStyle.Render("Executive report") + "\n" + in.Report + "\n")
	b.WriteString("\n" + sectionStyle.Render("Sentiment mentions") + "\n")
	b.WriteString(SentimentChart(in.Sentiment, service.Sentiments, max(10, m.width/3)) + "\n")
	if in.Evaluated {
		b.WriteString("\n" + sectionStyle.Render("Evaluation") + "\n")
		b.WriteString(fmt.Sprintf("Semantic similarity: mean %.3f, max %.3f over %d references\n",
			in.Similarity.MeanSimilarity, in.Similarity.MaxSimilarity, in.Similarity.References))
		switch {
		case in.RubricErr != nil:
			b.WriteString(dimStyle.Render("LLM rubric not available: "+in.RubricErr.Error()) + "\n")
		default:
			b.WriteString("LLM rubric: " + FormatRubric(in.Rubric) + "\n")
		}
	}
	return b.String()
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// highlightBestSentence emphasises the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := textutil.OverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}
