package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

const (
	// ExitTimeout reports a link that exceeded its timeout or a cancelled chain.
	ExitTimeout = -1
	// ExitBrokenPipe reports a bridge I/O failure.
	ExitBrokenPipe = -2
	// ExitSignaled reports a subprocess terminated by a signal.
	ExitSignaled = -3
	// ExitLaunchFailed reports a subprocess that could not be started, as a
	// shell reports an unrunnable command.
	ExitLaunchFailed = 127

	bridgeChunkSize = 32 << 10
	// shellSigpipeExit is 128+SIGPIPE.
	shellSigpipeExit = 141
)

// StageResult is the terminal status of one stage.
type StageResult struct {
	Stage    string
	Kind     Kind
	ExitCode int
	Err      error
}

// Result is the terminal status of a chain run.
type Result struct {
	ExitCode int
	// Output holds the sink contents when no stdout writer was given.
	Output []byte
	Err    error
	Stages []StageResult
}

// Succeeded reports a zero exit code.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0 && r.Err == nil
}

// link is the bridge between stage i and stage i+1.
type link struct {
	done chan struct{}
	err  error
	// downstreamClosed is set when the next stage stopped reading early.
	downstreamClosed bool
	bytes            int64
}

// Run executes the chain once.
//
// Every stage is launched eagerly, in chain order, before any stage is
// awaited; ordering between stages comes only from pipe backpressure. One
// bridge goroutine per adjacent pair is the sole reader of the upstream output
// and the sole writer of the downstream input. Waiting then walks the chain
// from head to tail: a stage whose upstream failed cancels the chain and fails
// with the upstream status, and every wait is bounded by the link timeout.
func (c *Chain) Run(ctx context.Context) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := c.opts.Log
	links := make([]*link, len(c.stages)-1)

	for i, st := range c.stages {
		if st.Kind == KindTool {
			if err := st.start(ctx, c, i > 0); err != nil {
				cancel()
				log.WithFields(map[string]any{"stage": st.Name}).Error(err, "stage failed to start")
				return c.abort(i, links, ExitLaunchFailed, apperrors.NewProcessError(st.Name, ExitLaunchFailed, err.Error()))
			}
			log.WithFields(map[string]any{"stage": st.Name, "pid": st.cmd.Process.Pid}).Debug("stage started")
		}
		if i > 0 {
			links[i-1] = c.bridge(ctx, c.stages[i-1], st)
		}
	}

	results := make([]StageResult, len(c.stages))
	final := StageResult{}

	for i, st := range c.stages {
		res := StageResult{Stage: st.Name, Kind: st.Kind}

		switch {
		case final.ExitCode != 0 || final.Err != nil:
			cancel()
			res.ExitCode = final.ExitCode
			res.Err = fmt.Errorf("%s: %w", st.Name, errUpstreamFailed)
		default:
			res.ExitCode, res.Err = c.awaitStage(ctx, i, st, links)
			if res.ExitCode != 0 || res.Err != nil {
				cancel()
				final = res
				log.WithFields(map[string]any{"stage": st.Name, "exit_code": res.ExitCode}).WarnErr(res.Err, "stage failed")
			}
		}
		results[i] = res
	}

	// bridges still copying after a failure stop once ctx is cancelled
	cancel()
	waitLinks(links)

	out := Result{ExitCode: final.ExitCode, Err: final.Err, Stages: results}
	if c.buffer != nil {
		out.Output = c.buffer.Bytes()
	}
	return out
}

// awaitStage waits for the inbound bridge and, for tool stages, the process.
func (c *Chain) awaitStage(ctx context.Context, i int, st *Stage, links []*link) (int, error) {
	if i > 0 {
		in := links[i-1]
		if code, err := c.await(ctx, st, in.done); err != nil {
			return code, err
		}
		if in.err != nil {
			return ExitBrokenPipe, in.err
		}
	}

	if st.Kind != KindTool {
		return 0, nil
	}

	if code, err := c.await(ctx, st, st.exited); err != nil {
		return code, err
	}

	waitErr := st.waitErr
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	isExit := errors.As(waitErr, &exitErr)

	// a process cut off by its reader ended the way a shell pipeline member does
	if isExit && brokenPipeExit(exitErr) && i < len(links) {
		if _, err := c.await(ctx, st, links[i].done); err == nil && links[i].downstreamClosed {
			return 0, nil
		}
	}

	if isExit {
		code := exitErr.ExitCode()
		if code < 0 {
			code = ExitSignaled
		}
		return code, apperrors.NewProcessError(st.Name, code, st.Stderr())
	}
	return ExitBrokenPipe, apperrors.NewIOError("wait", st.Name, waitErr)
}

// brokenPipeExit reports a process killed by SIGPIPE, either directly or as
// a shell reports a child killed by it.
func brokenPipeExit(exitErr *exec.ExitError) bool {
	if exitErr.ExitCode() == shellSigpipeExit {
		return true
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled() && ws.Signal() == syscall.SIGPIPE
}

// await blocks until done closes, the link timeout fires or ctx ends.
func (c *Chain) await(ctx context.Context, st *Stage, done <-chan struct{}) (int, error) {
	timer := time.NewTimer(c.opts.LinkTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return 0, nil
	case <-timer.C:
		return ExitTimeout, apperrors.NewTimeoutError(st.Name, c.opts.LinkTimeout)
	case <-ctx.Done():
		return ExitTimeout, fmt.Errorf("%s: %w", st.Name, ctx.Err())
	}
}

// bridge copies from's output into to's input in bounded chunks until EOF,
// then closes both ends. The bridge is the only writer of to's input and the
// only party closing it, except for a tool's stdin pipe, which cancellation
// closes to unblock a pending write.
func (c *Chain) bridge(ctx context.Context, from, to *Stage) *link {
	l := &link{done: make(chan struct{})}
	src, dst := from.readEnd(), to.writeEnd()

	closeSrc := sync.OnceFunc(func() { closeQuietly(src) })
	closeDst := sync.OnceValue(func() error {
		if closer, ok := dst.(io.Closer); ok {
			return closer.Close()
		}
		return nil
	})
	stop := context.AfterFunc(ctx, func() {
		closeSrc()
		if to.Kind == KindTool {
			_ = closeDst()
		}
	})

	go func() {
		defer close(l.done)

		buf := make([]byte, bridgeChunkSize)
		for {
			n, rerr := src.Read(buf)
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					if errors.Is(werr, syscall.EPIPE) {
						l.downstreamClosed = true
					} else if ctx.Err() == nil {
						l.err = apperrors.NewIOError("write", to.Name, werr)
					}
					break
				}
				l.bytes += int64(n)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				if ctx.Err() == nil {
					l.err = apperrors.NewIOError("read", from.Name, rerr)
				}
				break
			}
		}

		cancelled := !stop()
		closeSrc()
		if err := closeDst(); err != nil && !cancelled && l.err == nil && !l.downstreamClosed {
			l.err = apperrors.NewIOError("close", to.Name, err)
		}
		c.opts.Log.WithFields(map[string]any{"from": from.Name, "to": to.Name, "bytes": l.bytes}).Debug("bridge finished")
	}()

	return l
}

// waitLinks blocks until every started bridge has finished.
func waitLinks(links []*link) {
	for _, l := range links {
		if l != nil {
			<-l.done
		}
	}
}

// abort fails the stage at index failed and every stage after it. Stages
// before it were launched but are reported cancelled; their processes are
// reaped by their wait goroutines. The caller has cancelled ctx, so the
// bridges already started wind down before abort returns.
func (c *Chain) abort(failed int, links []*link, code int, err error) Result {
	results := make([]StageResult, len(c.stages))
	for i, st := range c.stages {
		results[i] = StageResult{Stage: st.Name, Kind: st.Kind, ExitCode: code, Err: err}
		if i < failed {
			results[i].ExitCode = ExitTimeout
			results[i].Err = fmt.Errorf("%s: %w", st.Name, context.Canceled)
		}
	}
	for _, st := range c.stages {
		closeQuietly(st.input)
		closeQuietly(st.output)
		// endpoints no bridge took ownership of
		if (st.Kind == KindSource && failed < 2) || st.Kind == KindSink {
			closeQuietly(st.source)
			closeQuietly(st.sink)
		}
	}
	waitLinks(links)
	return Result{ExitCode: code, Err: err, Stages: results}
}
