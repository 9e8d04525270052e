package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/toolweave/internal/model"
)

func TestViewRendersLines(t *testing.T) {
	m := NewModel("control.txt", sampleLines(), false)
	m.lines[0] = model.LineResult{Offset: 0, Number: 1, Line: "text upper --input=a", Status: model.StatusSuccess, Duration: 120 * time.Millisecond}
	m.lines[21] = model.LineResult{Offset: 21, Number: 2, Line: "text upper --input=b", Status: model.StatusFailed, ExitCode: 2}
	m.completed, m.failed = 2, 1

	view := m.View()
	require.Contains(t, view, "control.txt")
	require.Contains(t, view, "#1 text upper --input=a")
	require.Contains(t, view, "(exit 2)")
	require.Contains(t, view, "2/2")
	require.Contains(t, view, "1 failed")
}

func TestViewShowsSummaryWhenFinished(t *testing.T) {
	m := NewModel("", sampleLines(), false)
	m.finished = true
	m.completed = 1
	m.report = "2 lines, 1 succeeded"

	view := m.View()
	require.Contains(t, view, "toolweave • Run")
	require.Contains(t, view, "Run finished with pending lines")
	require.Contains(t, view, "2 lines, 1 succeeded")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	got := truncate(strings.Repeat("x", 20), 10)
	require.Equal(t, 10, len([]rune(got)))
	require.True(t, strings.HasSuffix(got, "…"))
}

func TestStatusIcon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   string
		expected string
	}{
		{"success shows checkmark", model.StatusSuccess, "✓"},
		{"running shows hourglass", model.StatusRunning, "⏳"},
		{"failed shows cross", model.StatusFailed, "✗"},
		{"pending shows ellipsis", model.StatusPending, "…"},
		{"empty shows ellipsis", "", "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Contains(t, StatusIcon(tt.status), tt.expected)
		})
	}
}
