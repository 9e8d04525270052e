package errors

import (
	stdErrors "errors"
	"fmt"
	"time"
)

// ErrNotFound marks catalog lookups for tools or operations that do not exist.
var ErrNotFound = stdErrors.New("not found")

// ParseError represents a malformed control line or configuration document.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

// NewLineParseError constructs a ParseError pointing at a column of a control line.
func NewLineParseError(line, column int, message string) error {
	return &ParseError{Line: line, Column: column, Message: message}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	case e.Path != "":
		return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
	case e.Column > 0:
		return fmt.Sprintf("parse error: line %d, column %d: %s", e.Line, e.Column, e.Message)
	default:
		return fmt.Sprintf("parse error: line %d: %s", e.Line, e.Message)
	}
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CatalogError reports an unknown tool or operation, or a command template that
// cannot be rendered.
type CatalogError struct {
	Tool      string
	Operation string
	Message   string
	Err       error
}

// NewCatalogError constructs a CatalogError.
func NewCatalogError(tool, operation, message string, err error) error {
	return &CatalogError{Tool: tool, Operation: operation, Message: message, Err: err}
}

func (e *CatalogError) Error() string {
	if e == nil {
		return ""
	}
	subject := e.Tool
	if e.Operation != "" {
		subject = fmt.Sprintf("%s/%s", e.Tool, e.Operation)
	}
	if subject == "" {
		return fmt.Sprintf("catalog error: %s", e.Message)
	}
	return fmt.Sprintf("catalog error [%s]: %s", subject, e.Message)
}

// Unwrap exposes the underlying error.
func (e *CatalogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LocalityError reports that block locations for a reference could not be resolved.
// It never aborts partitioning.
type LocalityError struct {
	Ref string
	Err error
}

// NewLocalityError constructs a LocalityError.
func NewLocalityError(ref string, err error) error {
	return &LocalityError{Ref: ref, Err: err}
}

func (e *LocalityError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("locality error on %s: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *LocalityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IOError represents a storage transport failure while staging files.
type IOError struct {
	Op  string
	Ref string
	Err error
}

// NewIOError constructs an IOError for the given operation and reference.
func NewIOError(op, ref string, err error) error {
	return &IOError{Op: op, Ref: ref, Err: err}
}

func (e *IOError) Error() string {
	if e == nil {
		return ""
	}
	if e.Ref != "" {
		return fmt.Sprintf("io error: %s %s: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("io error: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *IOError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TimeoutError marks a chain stage that did not finish within the per-link timeout.
type TimeoutError struct {
	Stage   string
	Timeout time.Duration
}

// NewTimeoutError constructs a TimeoutError.
func NewTimeoutError(stage string, timeout time.Duration) error {
	return &TimeoutError{Stage: stage, Timeout: timeout}
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("timeout: stage %s exceeded %s", e.Stage, e.Timeout)
}

// ProcessError describes a subprocess that exited with a non-zero status.
type ProcessError struct {
	Stage    string
	ExitCode int
	Stderr   string
}

// NewProcessError constructs a ProcessError.
func NewProcessError(stage string, exitCode int, stderr string) error {
	return &ProcessError{Stage: stage, ExitCode: exitCode, Stderr: stderr}
}

func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stderr != "" {
		return fmt.Sprintf("process %s exited with code %d: %s", e.Stage, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("process %s exited with code %d", e.Stage, e.ExitCode)
}
