package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/toolweave/internal/model"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, nil
	case LineStartMsg:
		m.ensureLine(msg.Line.Offset, msg.Line.Number, msg.Line.Text)
		res := m.lines[msg.Line.Offset]
		if res.Status == model.StatusPending {
			res.Status = model.StatusRunning
			m.lines[msg.Line.Offset] = res
		}
		return m, nil
	case LineCompleteMsg:
		res := msg.Result
		m.ensureLine(res.Offset, res.Number, res.Line)
		existing := m.lines[res.Offset]
		previouslyCompleted := existing.Status == model.StatusSuccess || existing.Status == model.StatusFailed
		m.lines[res.Offset] = res
		if !previouslyCompleted {
			m.completed++
			if res.Status == model.StatusFailed {
				m.failed++
			}
			m.markFinishedIfComplete()
		}
		return m, nil
	case ReportMsg:
		m.report = msg.Text
		m.finished = true
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.finished = true
			return m, tea.Quit
		}
	case tea.QuitMsg:
		m.finished = true
		return m, nil
	}

	return m, nil
}
