package chain

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Kind classifies a stage.
type Kind int

const (
	// KindSource only produces output.
	KindSource Kind = iota
	// KindTool runs a subprocess with both endpoints.
	KindTool
	// KindSink only consumes input.
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindTool:
		return "tool"
	case KindSink:
		return "sink"
	}
	return "unknown"
}

const stderrTailSize = 64 << 10

// Stage is one element of a chain. Only tool stages hold a process.
type Stage struct {
	Kind    Kind
	Name    string
	Command string
	Java    bool

	source io.Reader
	sink   io.Writer

	shell string
	args  []string

	cmd     *exec.Cmd
	input   *os.File
	output  *os.File
	stderr  *tailBuffer
	exited  chan struct{}
	waitErr error
}

// readEnd returns the readable endpoint of the stage.
func (s *Stage) readEnd() io.Reader {
	if s.Kind == KindSource {
		return s.source
	}
	return s.output
}

// writeEnd returns the writable endpoint of the stage.
func (s *Stage) writeEnd() io.Writer {
	if s.Kind == KindSink {
		return s.sink
	}
	return s.input
}

// start launches the subprocess. withInput gives the process a pipe for
// stdin; otherwise it reads from the null device.
func (s *Stage) start(ctx context.Context, c *Chain, withInput bool) error {
	if c.opts.TerminateOnCancel {
		s.cmd = exec.CommandContext(ctx, s.shell, s.args...)
		s.cmd.WaitDelay = 5 * time.Second
	} else {
		s.cmd = exec.Command(s.shell, s.args...)
	}
	s.cmd.Dir = c.opts.WorkDir
	s.cmd.Env = c.env(s.Java)
	s.stderr = newTailBuffer(stderrTailSize)
	s.cmd.Stderr = s.stderr

	var childIn, childOut *os.File
	closeAll := func() {
		for _, f := range []*os.File{childIn, childOut, s.input, s.output} {
			if f != nil {
				_ = f.Close()
			}
		}
	}

	var err error
	if withInput {
		if childIn, s.input, err = os.Pipe(); err != nil {
			return err
		}
		s.cmd.Stdin = childIn
	}
	if s.output, childOut, err = os.Pipe(); err != nil {
		closeAll()
		return err
	}
	s.cmd.Stdout = childOut

	if err := s.cmd.Start(); err != nil {
		closeAll()
		return err
	}

	// the child owns its ends now
	if childIn != nil {
		_ = childIn.Close()
	}
	_ = childOut.Close()

	// the wait goroutine also reaps processes the chain stops awaiting
	s.exited = make(chan struct{})
	go func() {
		s.waitErr = s.cmd.Wait()
		close(s.exited)
	}()
	return nil
}

// Stderr returns the captured tail of the stage's standard error.
func (s *Stage) Stderr() string {
	if s.stderr == nil {
		return ""
	}
	return s.stderr.String()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

var errUpstreamFailed = errors.New("upstream stage failed")
