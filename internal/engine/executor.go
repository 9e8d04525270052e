package engine

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/toolweave/internal/chain"
	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/model"
	"github.com/alexisbeaulieu97/toolweave/internal/partition"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Executor runs work units through a bounded worker pool.
type Executor struct {
	ec *ExecutionContext

	// OnStart is called when a line's chain is about to run.
	OnStart func(line controlline.Line)
	// OnComplete is called from the worker goroutine as each line finishes.
	OnComplete func(res model.LineResult)
}

// NewExecutor creates a new executor over a shared execution context.
func NewExecutor(ec *ExecutionContext) *Executor {
	return &Executor{ec: ec}
}

// Run executes lines concurrently, at most Settings.Parallel at a time, and
// returns their results in input order. A failing line never stops its
// siblings; lines not started before ctx ends are reported failed and the
// context error is returned.
func (e *Executor) Run(ctx context.Context, lines []controlline.Line) ([]model.LineResult, error) {
	if e.ec == nil {
		return nil, apperrors.NewValidationError("executor", "execution context is nil", nil)
	}

	results := make([]model.LineResult, len(lines))
	var g errgroup.Group
	g.SetLimit(e.ec.Settings.Parallel)

	for i, line := range lines {
		if ctx.Err() != nil {
			results[i] = notStarted(line, ctx.Err())
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = notStarted(line, ctx.Err())
				return nil
			}
			if e.OnStart != nil {
				e.OnStart(line)
			}
			results[i] = RunLine(ctx, e.ec, line)
			if e.OnComplete != nil {
				e.OnComplete(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := model.Summarize(results)
	e.ec.Logger.WithFields(map[string]any{
		"lines":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("run finished")

	return results, ctx.Err()
}

// RunReader executes every line read from r. base is the byte offset of r's
// first byte within the control file.
func (e *Executor) RunReader(ctx context.Context, r io.Reader, base int64) ([]model.LineResult, error) {
	lines, err := controlline.ReadAll(r, base)
	if err != nil {
		return nil, fmt.Errorf("read control lines: %w", err)
	}
	return e.Run(ctx, lines)
}

// RunSplit executes the lines of one split of a rearranged control file.
func (e *Executor) RunSplit(ctx context.Context, opener partition.Opener, s partition.Split) ([]model.LineResult, error) {
	lines, err := ReadSplit(ctx, opener, s)
	if err != nil {
		return nil, err
	}
	e.ec.Logger.WithFields(map[string]any{"split": s.String(), "hosts": s.Hosts, "lines": len(lines)}).Info("running split")
	return e.Run(ctx, lines)
}

// ReadSplit reads the control lines of one split, with offsets relative to
// the start of the rearranged file.
func ReadSplit(ctx context.Context, opener partition.Opener, s partition.Split) ([]controlline.Line, error) {
	rc, err := partition.OpenSplit(ctx, opener, s)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	lines, err := controlline.ReadAll(rc, s.Start)
	if err != nil {
		return nil, apperrors.NewIOError("read", s.String(), err)
	}
	return lines, nil
}

func notStarted(line controlline.Line, err error) model.LineResult {
	res := model.LineResult{Offset: line.Offset, Number: line.Number, Line: line.Text}
	res.Fail(chain.ExitTimeout, err)
	return res
}
