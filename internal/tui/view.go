package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/toolweave/internal/model"
	"github.com/alexisbeaulieu97/toolweave/internal/tui/components"
)

const maxLineWidth = 60

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("toolweave • %s", m.heading())))

	progress := components.NewProgress(m.total).View(m.completed, m.failed)
	sections = append(sections, sectionStyle.Render("Progress"), progress)

	limit := maxVisibleLines
	if m.nonInteractive {
		limit = 0
	}
	entries := components.NewLineList(m.order, m.lines, limit).Entries()
	if len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Lines"), renderLineEntries(entries))
	}

	summary := components.NewSummary(components.SummaryData{
		Total:     m.total,
		Completed: m.completed,
		Failed:    m.failed,
		Finished:  m.finished,
		Cancelled: m.cancelled,
		Report:    m.report,
	}).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderLineEntries(entries []components.LineEntry) string {
	var lines []string
	for _, entry := range entries {
		res := entry.Result
		line := fmt.Sprintf(" %s #%d %s", StatusIcon(res.Status), res.Number, truncate(res.Line, maxLineWidth))
		if res.Status == model.StatusFailed {
			line = fmt.Sprintf("%s (exit %d)", line, res.ExitCode)
		}
		if res.Duration > 0 {
			line = fmt.Sprintf("%s %s", line, res.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) heading() string {
	if strings.TrimSpace(m.title) != "" {
		return m.title
	}
	return "Run"
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

// StatusIcon returns the glyph representing a line status.
func StatusIcon(status string) string {
	switch status {
	case model.StatusSuccess:
		return successStyle.Render("✓")
	case model.StatusRunning:
		return runningStyle.Render("⏳")
	case model.StatusFailed:
		return failureStyle.Render("✗")
	default:
		return pendingStyle.Render("…")
	}
}
