package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/toolweave/internal/chain"
	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/model"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// ExitSetupFailed is reported for a line that failed before its chain ran.
const ExitSetupFailed = 1

// RunLine parses, stages and executes one control line. Failures are
// recorded in the result and never returned.
func RunLine(ctx context.Context, ec *ExecutionContext, line controlline.Line) (res model.LineResult) {
	start := time.Now()
	res = model.LineResult{
		Offset:    line.Offset,
		Number:    line.Number,
		Line:      line.Text,
		Status:    model.StatusRunning,
		Timestamp: start,
	}
	log := ec.Logger.WithFields(map[string]any{"offset": line.Offset, "line": line.Number})

	defer func() {
		res.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		res.Fail(chain.ExitTimeout, err)
		return res
	}

	parsed, err := ec.Parser.Parse(line)
	if err != nil {
		log.WarnErr(err, "control line rejected")
		res.Fail(ExitSetupFailed, err)
		return res
	}
	invs, err := chain.Resolve(ec.Catalog, parsed.Commands)
	if err != nil {
		log.WarnErr(err, "control line rejected")
		res.Fail(ExitSetupFailed, err)
		return res
	}

	workDir := filepath.Join(ec.Settings.ScratchRoot, uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		res.Fail(ExitSetupFailed, apperrors.NewIOError("mkdir", workDir, err))
		return res
	}
	log = log.WithFields(map[string]any{"scratch": workDir})
	if !ec.Settings.KeepScratch {
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				log.WarnErr(err, "failed to remove scratch directory")
			}
		}()
	}

	outputs, err := localize(ctx, ec, invs, workDir)
	if err != nil {
		log.WarnErr(err, "staging failed")
		res.Fail(ExitSetupFailed, err)
		return res
	}

	stdin, stdout, err := openStreams(ctx, ec, parsed)
	if err != nil {
		res.Fail(ExitSetupFailed, err)
		return res
	}
	res.OutputPath = parsed.Stdout

	c, err := chain.Build(invs, stdin, stdout, ec.chainOptions(workDir, log))
	if err != nil {
		closeStream(stdin)
		closeStream(stdout)
		log.WarnErr(err, "chain construction failed")
		res.Fail(ExitSetupFailed, err)
		return res
	}

	log.Debug("chain started")
	out := c.Run(ctx)
	if !out.Succeeded() {
		res.Fail(out.ExitCode, out.Err)
		log.WithFields(map[string]any{"exit_code": out.ExitCode}).WarnErr(out.Err, "chain failed")
		return res
	}

	if err := delocalize(ctx, ec, outputs, workDir); err != nil {
		log.WarnErr(err, "copying outputs back failed")
		res.Fail(ExitSetupFailed, err)
		return res
	}

	res.Status = model.StatusSuccess
	res.ExitCode = out.ExitCode
	res.Output = string(out.Output)
	log.Debug("chain finished")
	return res
}

// localize rewrites input and output parameter values to scratch paths and
// returns the original output values. Inputs must exist; outputs need only
// their parent directory.
func localize(ctx context.Context, ec *ExecutionContext, invs []chain.Invocation, workDir string) ([]string, error) {
	var outputs []string
	for _, inv := range invs {
		for name, value := range inv.Binding.Inputs {
			if value == "" {
				continue
			}
			local, err := ec.Stager.LocalizeValue(ctx, value, workDir, true)
			if err != nil {
				return nil, err
			}
			inv.Binding.Inputs[name] = local
		}
		for name, value := range inv.Binding.Outputs {
			if value == "" {
				continue
			}
			local, err := ec.Stager.LocalizeValue(ctx, value, workDir, false)
			if err != nil {
				return nil, err
			}
			inv.Binding.Outputs[name] = local
			outputs = append(outputs, value)
		}
	}
	return outputs, nil
}

// delocalize copies produced outputs back to their refs.
func delocalize(ctx context.Context, ec *ExecutionContext, outputs []string, workDir string) error {
	for _, value := range outputs {
		if err := ec.Stager.DelocalizeValue(ctx, value, workDir); err != nil {
			return err
		}
	}
	return nil
}

func openStreams(ctx context.Context, ec *ExecutionContext, parsed *controlline.Parsed) (io.Reader, io.Writer, error) {
	var stdin io.Reader
	if parsed.Stdin != "" {
		r, err := ec.Storage.Open(ctx, parsed.Stdin)
		if err != nil {
			return nil, nil, err
		}
		stdin = r
	}

	var stdout io.Writer
	if parsed.Stdout != "" {
		w, err := ec.Storage.Create(ctx, parsed.Stdout)
		if err != nil {
			closeStream(stdin)
			return nil, nil, err
		}
		stdout = w
	}
	return stdin, stdout, nil
}

func closeStream(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
