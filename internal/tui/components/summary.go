package components

import (
	"fmt"
	"strings"
)

// SummaryData aggregates counts for rendering summaries.
type SummaryData struct {
	Total     int
	Completed int
	Failed    int
	Finished  bool
	Cancelled bool
	// Report is an optional one-line latency report.
	Report string
}

// Summary renders a textual run summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.Total > 0 {
		lines = append(lines, fmt.Sprintf("Lines: %d/%d completed, %d failed", s.data.Completed, s.data.Total, s.data.Failed))
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Run cancelled")
	case s.data.Finished && s.data.Total > 0:
		switch {
		case s.data.Completed < s.data.Total:
			lines = append(lines, "Run finished with pending lines")
		case s.data.Failed > 0:
			lines = append(lines, "Run finished with failures")
		default:
			lines = append(lines, "Run finished successfully")
		}
	}

	if s.data.Report != "" {
		lines = append(lines, s.data.Report)
	}

	return strings.Join(lines, "\n")
}
