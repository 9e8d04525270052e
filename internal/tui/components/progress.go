package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

var failedLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

// Progress renders how many control lines have finished.
type Progress struct {
	bar   progress.Model
	total int
}

// NewProgress creates a progress component for the given number of lines.
func NewProgress(total int) Progress {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30
	return Progress{bar: bar, total: total}
}

// View renders the bar for completed lines, noting failures when present.
func (p Progress) View(completed, failed int) string {
	ratio := 0.0
	if p.total > 0 {
		ratio = math.Min(1.0, float64(completed)/float64(p.total))
	}
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d/%d", completed, p.total))
	view := lipgloss.JoinHorizontal(lipgloss.Left, label, " ", p.bar.ViewAs(ratio))
	if failed > 0 {
		view = lipgloss.JoinHorizontal(lipgloss.Left, view, " ", failedLabelStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	return view
}
