package controlline

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Scan reads newline-separated control lines from r and calls fn for each
// non-blank line. Line numbers count every physical line of r, blank ones
// included. base is the byte offset of r's first byte within the source
// file, so offsets stay meaningful when r covers a split.
func Scan(r io.Reader, base int64, fn func(Line) error) error {
	br := bufio.NewReader(r)
	offset := base
	number := 0

	for {
		raw, err := br.ReadString('\n')
		if len(raw) > 0 {
			start := offset
			offset += int64(len(raw))
			number++

			text := strings.TrimRight(raw, "\r\n")
			if strings.TrimSpace(text) != "" {
				if cbErr := fn(Line{Number: number, Offset: start, Text: text}); cbErr != nil {
					return cbErr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ReadAll collects every non-blank line of r.
func ReadAll(r io.Reader, base int64) ([]Line, error) {
	var lines []Line
	err := Scan(r, base, func(l Line) error {
		lines = append(lines, l)
		return nil
	})
	return lines, err
}
