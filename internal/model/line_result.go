package model

import (
	"time"
)

const (
	// StatusPending indicates a line has not started yet.
	StatusPending = "pending"
	// StatusRunning indicates a line's chain is executing.
	StatusRunning = "running"
	// StatusSuccess marks a chain that exited zero.
	StatusSuccess = "success"
	// StatusFailed marks a line that could not be parsed, staged or run.
	StatusFailed = "failed"
)

// ErrorPrefix starts the output recorded for a failed line.
const ErrorPrefix = "ERROR: "

// LineResult captures the outcome of executing one control line.
type LineResult struct {
	// Offset is the byte offset of the line in its source file.
	Offset int64  `json:"offset"`
	Number int    `json:"line_number"`
	Line   string `json:"line"`
	Status string `json:"status"`
	// ExitCode is the chain's terminal status; negative values are sentinels.
	ExitCode int `json:"exit_code"`
	// Output is the collected sink output, or ErrorPrefix and the failure text.
	Output string `json:"output,omitempty"`
	// OutputPath names the ref that received the output when the line redirected it.
	OutputPath string        `json:"output_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Timestamp  time.Time     `json:"timestamp"`

	Err error `json:"-"`
}

// Fail marks the result failed with err.
func (r *LineResult) Fail(exitCode int, err error) {
	r.Status = StatusFailed
	r.ExitCode = exitCode
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
	r.Output = ErrorPrefix + r.Error
}

// Succeeded reports whether the line completed successfully.
func (r LineResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Summary counts results by status.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Pending   int
}

// Summarize counts results by status.
func Summarize(results []LineResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// AllSucceeded returns true when every line succeeded.
func (s Summary) AllSucceeded() bool {
	return s.Total == s.Succeeded
}
