// Package controlline models control-file lines and parses them into tool
// invocations.
package controlline

import (
	"sort"
	"strings"
)

// Line is one unit of work read from a control file.
type Line struct {
	// Number is the 1-based physical line number within the source read.
	Number int
	// Offset is the byte offset of the line within its source file.
	Offset int64
	Text   string
}

// Command is a single tool invocation within a control line.
type Command struct {
	Tool   string
	Action string
	Params map[string]string
}

// ParamNames returns the parameter keys in sorted order.
func (c Command) ParamNames() []string {
	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Tool)
	b.WriteByte(' ')
	b.WriteString(c.Action)
	for _, name := range c.ParamNames() {
		b.WriteString(" --")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(quote(c.Params[name]))
	}
	return b.String()
}

// Parsed is the result of parsing one control line.
type Parsed struct {
	Commands []Command
	// Stdin names a file streamed into the first command, empty when absent.
	Stdin string
	// Stdout names a file receiving the last command's output, empty when absent.
	Stdout string
}

// Parser turns a control line into commands and stream redirections.
type Parser interface {
	Parse(line Line) (*Parsed, error)
}

func quote(value string) string {
	if value != "" && !strings.ContainsAny(value, " \t\"'|>") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}
