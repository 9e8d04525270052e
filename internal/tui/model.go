package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/model"
)

// LineStartMsg indicates a line's chain has started.
type LineStartMsg struct {
	Line controlline.Line
	Time time.Time
}

// LineCompleteMsg reports that a line has finished.
type LineCompleteMsg struct {
	Result model.LineResult
}

// ReportMsg carries the closing latency report of a run.
type ReportMsg struct {
	Text string
}

type tickMsg struct{}

const maxVisibleLines = 15

// Model contains the Bubbletea state for a run's progress view.
type Model struct {
	title          string
	lines          map[int64]model.LineResult
	order          []int64
	total          int
	completed      int
	failed         int
	report         string
	finished       bool
	cancelled      bool
	nonInteractive bool
}

// NewModel constructs a progress model for the given lines, keyed by offset.
func NewModel(title string, lines []controlline.Line, nonInteractive bool) Model {
	m := Model{
		title:          title,
		lines:          make(map[int64]model.LineResult, len(lines)),
		order:          make([]int64, 0, len(lines)),
		nonInteractive: nonInteractive,
	}
	for _, l := range lines {
		m.ensureLine(l.Offset, l.Number, l.Text)
	}
	return m
}

// Init starts the Bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// TotalLines returns the number of lines tracked by the model.
func (m Model) TotalLines() int {
	return m.total
}

// CompletedLines returns the number of finished lines.
func (m Model) CompletedLines() int {
	return m.completed
}

// FailedLines returns the number of failed lines.
func (m Model) FailedLines() int {
	return m.failed
}

// IsFinished reports whether the run has completed.
func (m Model) IsFinished() bool {
	return m.finished
}

// Cancelled reports whether the user interrupted the run.
func (m Model) Cancelled() bool {
	return m.cancelled
}

func (m *Model) ensureLine(offset int64, number int, text string) {
	if _, exists := m.lines[offset]; exists {
		return
	}
	m.lines[offset] = model.LineResult{Offset: offset, Number: number, Line: text, Status: model.StatusPending}
	m.order = append(m.order, offset)
	m.total++
}

func (m *Model) markFinishedIfComplete() {
	if m.total > 0 && m.completed >= m.total {
		m.finished = true
	}
}
