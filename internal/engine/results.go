package engine

import (
	"bufio"
	"io"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/alexisbeaulieu97/toolweave/internal/model"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// ResultWriter writes line results as JSON lines. It is safe for concurrent use.
type ResultWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewResultWriter returns a writer emitting one JSON object per line to w.
func NewResultWriter(w io.Writer) *ResultWriter {
	return &ResultWriter{w: w}
}

// Write encodes one result.
func (rw *ResultWriter) Write(res model.LineResult) error {
	data, err := sonic.Marshal(res)
	if err != nil {
		return apperrors.NewIOError("encode", "results", err)
	}
	data = append(data, '\n')

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if _, err := rw.w.Write(data); err != nil {
		return apperrors.NewIOError("write", "results", err)
	}
	return nil
}

// WriteAll encodes results in order.
func (rw *ResultWriter) WriteAll(results []model.LineResult) error {
	for _, res := range results {
		if err := rw.Write(res); err != nil {
			return err
		}
	}
	return nil
}

// ReadResults decodes a JSON lines result stream.
func ReadResults(r io.Reader) ([]model.LineResult, error) {
	var results []model.LineResult
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 64<<20)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var res model.LineResult
		if err := sonic.Unmarshal(sc.Bytes(), &res); err != nil {
			return nil, apperrors.NewParseError("results", len(results)+1, err)
		}
		results = append(results, res)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.NewIOError("read", "results", err)
	}
	return results, nil
}
