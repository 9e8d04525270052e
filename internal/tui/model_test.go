package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/model"
)

func sampleLines() []controlline.Line {
	return []controlline.Line{
		{Number: 1, Offset: 0, Text: "text upper --input=a"},
		{Number: 2, Offset: 21, Text: "text upper --input=b"},
	}
}

func TestNewModelInitialisesState(t *testing.T) {
	m := NewModel("control.txt", sampleLines(), false)

	require.Equal(t, 2, m.TotalLines())
	require.Zero(t, m.CompletedLines())
	require.False(t, m.IsFinished())
	require.Equal(t, model.StatusPending, m.lines[21].Status)
	require.Equal(t, []int64{0, 21}, m.order)
}

func TestModelInitReturnsTickCommand(t *testing.T) {
	m := NewModel("", nil, false)
	require.NotNil(t, m.Init())
}

func TestModelFinishesWhenEveryLineCompletes(t *testing.T) {
	m := NewModel("", sampleLines(), false)

	updated, _ := m.Update(LineCompleteMsg{Result: model.LineResult{Offset: 0, Number: 1, Status: model.StatusSuccess}})
	m = updated.(Model)
	require.False(t, m.IsFinished())

	updated, _ = m.Update(LineCompleteMsg{Result: model.LineResult{Offset: 21, Number: 2, Status: model.StatusFailed, ExitCode: 2}})
	m = updated.(Model)
	require.True(t, m.IsFinished())
	require.Equal(t, 2, m.CompletedLines())
	require.Equal(t, 1, m.FailedLines())
}

func TestModelMarksFinishedOnQuit(t *testing.T) {
	m := NewModel("", nil, false)

	updated, cmd := m.Update(tea.QuitMsg{})
	require.Nil(t, cmd)
	m = updated.(Model)
	require.True(t, m.IsFinished())
}
