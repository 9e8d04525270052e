package chain

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/toolweave/internal/catalog"
	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("chain tests rely on POSIX tools")
	}
}

func shellInvocation(command string, params ...catalog.Param) Invocation {
	op := &catalog.Operation{Name: "run", Command: command, Parameters: params}
	return Invocation{Tool: "sh", Operation: op, Binding: op.Bind(nil)}
}

func testOptions(t *testing.T) Options {
	return Options{
		WorkDir:           t.TempDir(),
		Shell:             "/bin/sh",
		LinkTimeout:       10 * time.Second,
		TerminateOnCancel: true,
		Log:               logger.Nop(),
	}
}

func pattern(size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte('a' + i%26)
	}
	return buf
}

func TestChainPreservesByteOrder(t *testing.T) {
	skipOnWindows(t)

	input := pattern(1 << 20)
	c, err := Build([]Invocation{shellInvocation("cat"), shellInvocation("cat")}, bytes.NewReader(input), nil, testOptions(t))
	require.NoError(t, err)
	require.Len(t, c.Stages(), 4)
	require.Equal(t, KindSource, c.Stages()[0].Kind)
	require.Equal(t, KindSink, c.Stages()[3].Kind)

	res := c.Run(context.Background())
	require.NoError(t, res.Err)
	require.Equal(t, 0, res.ExitCode)
	require.True(t, bytes.Equal(input, res.Output), "sink must receive the source bytes in order")
	for _, st := range res.Stages {
		require.Equal(t, 0, st.ExitCode, st.Stage)
	}
}

func TestChainWritesToSinkWriter(t *testing.T) {
	skipOnWindows(t)

	var out bytes.Buffer
	c, err := Build([]Invocation{shellInvocation("printf 'b\\na\\n'"), shellInvocation("sort")}, nil, &out, testOptions(t))
	require.NoError(t, err)

	res := c.Run(context.Background())
	require.True(t, res.Succeeded())
	require.Nil(t, res.Output)
	require.Equal(t, "a\nb\n", out.String())
}

func TestChainPropagatesExitCode(t *testing.T) {
	skipOnWindows(t)

	c, err := Build([]Invocation{shellInvocation("echo oops >&2; exit 2")}, strings.NewReader("ignored"), nil, testOptions(t))
	require.NoError(t, err)

	res := c.Run(context.Background())
	require.Equal(t, 2, res.ExitCode)

	var procErr *apperrors.ProcessError
	require.ErrorAs(t, res.Err, &procErr)
	require.Equal(t, 2, procErr.ExitCode)
	require.Contains(t, procErr.Stderr, "oops")

	sink := res.Stages[len(res.Stages)-1]
	require.Equal(t, 2, sink.ExitCode)
	require.ErrorIs(t, sink.Err, errUpstreamFailed)
}

func TestChainTimeoutSentinel(t *testing.T) {
	skipOnWindows(t)

	opts := testOptions(t)
	opts.LinkTimeout = 200 * time.Millisecond

	c, err := Build([]Invocation{shellInvocation("sleep 5"), shellInvocation("cat")}, nil, nil, opts)
	require.NoError(t, err)

	started := time.Now()
	res := c.Run(context.Background())
	require.Less(t, time.Since(started), 4*time.Second)

	require.Equal(t, ExitTimeout, res.ExitCode)
	var timeoutErr *apperrors.TimeoutError
	require.ErrorAs(t, res.Err, &timeoutErr)
	for _, st := range res.Stages {
		require.NotEqual(t, 0, st.ExitCode, "stage %s must not report success", st.Stage)
	}
}

func TestChainCancelledByCaller(t *testing.T) {
	skipOnWindows(t)

	c, err := Build([]Invocation{shellInvocation("sleep 5")}, nil, nil, testOptions(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := c.Run(ctx)
	require.Equal(t, ExitTimeout, res.ExitCode)
	require.True(t, errors.Is(res.Err, context.DeadlineExceeded))
}

func TestChainDownstreamClosingEarlyIsNotAFailure(t *testing.T) {
	skipOnWindows(t)

	c, err := Build([]Invocation{shellInvocation("yes"), shellInvocation("head -n 3")}, nil, nil, testOptions(t))
	require.NoError(t, err)

	res := c.Run(context.Background())
	require.NoError(t, res.Err)
	require.Equal(t, "y\ny\ny\n", string(res.Output))
}

func TestChainTimeoutJoinsBridgesBeforeReturning(t *testing.T) {
	skipOnWindows(t)

	opts := testOptions(t)
	opts.LinkTimeout = 200 * time.Millisecond

	c, err := Build([]Invocation{shellInvocation("yes")}, nil, nil, opts)
	require.NoError(t, err)

	res := c.Run(context.Background())
	require.Equal(t, ExitTimeout, res.ExitCode)
	require.True(t, strings.HasPrefix(string(res.Output), "y\ny\n"), "collected output must hold what the bridge copied")
}

// recordingWriter fails the test when Write and Close overlap or Write
// follows Close.
type recordingWriter struct {
	t       *testing.T
	mu      sync.Mutex
	writing bool
	closed  bool
	n       int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.t.Error("write after close")
		return 0, errors.New("closed")
	}
	w.writing = true
	w.mu.Unlock()

	time.Sleep(time.Millisecond)

	w.mu.Lock()
	w.writing = false
	w.n += len(p)
	w.mu.Unlock()
	return len(p), nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writing {
		w.t.Error("close during write")
	}
	w.closed = true
	return nil
}

func TestChainFailureClosesSinkAfterLastWrite(t *testing.T) {
	skipOnWindows(t)

	opts := testOptions(t)
	opts.LinkTimeout = 200 * time.Millisecond

	sink := &recordingWriter{t: t}
	c, err := Build([]Invocation{shellInvocation("yes")}, nil, sink, opts)
	require.NoError(t, err)

	res := c.Run(context.Background())
	require.Equal(t, ExitTimeout, res.ExitCode)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.True(t, sink.closed, "sink must be closed once the chain returns")
	require.False(t, sink.writing)
	require.Positive(t, sink.n)
}

func TestChainUpstreamOwnFailureIsNotMaskedByClosedReader(t *testing.T) {
	skipOnWindows(t)

	c, err := Build([]Invocation{shellInvocation("yes; exit 5"), shellInvocation("head -n 1")}, nil, nil, testOptions(t))
	require.NoError(t, err)

	res := c.Run(context.Background())
	require.Equal(t, 5, res.ExitCode)
	var procErr *apperrors.ProcessError
	require.ErrorAs(t, res.Err, &procErr)
	require.Equal(t, 5, procErr.ExitCode)
}

func TestChainToolIgnoringLargeInput(t *testing.T) {
	skipOnWindows(t)

	c, err := Build([]Invocation{shellInvocation("head -c 10")}, bytes.NewReader(pattern(4<<20)), nil, testOptions(t))
	require.NoError(t, err)

	res := c.Run(context.Background())
	require.NoError(t, res.Err)
	require.Equal(t, "abcdefghij", string(res.Output))
}

func TestChainRunsInWorkDirWithParameters(t *testing.T) {
	skipOnWindows(t)

	opts := testOptions(t)
	op := &catalog.Operation{
		Name:       "show",
		Command:    "pwd; echo ${greeting}",
		Parameters: []catalog.Param{{Name: "greeting", Default: "hello"}},
	}
	inv := Invocation{Tool: "sh", Operation: op, Binding: op.Bind(map[string]string{"greeting": "bonjour"})}

	c, err := Build([]Invocation{inv}, nil, nil, opts)
	require.NoError(t, err)
	require.Equal(t, "pwd; echo bonjour", c.Stages()[0].Command)

	res := c.Run(context.Background())
	require.NoError(t, res.Err)

	lines := strings.Split(strings.TrimSpace(string(res.Output)), "\n")
	require.Len(t, lines, 2)
	want, err := filepath.EvalSymlinks(opts.WorkDir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, "bonjour", lines[1])
}

func TestChainJavaToolsGetJavaHome(t *testing.T) {
	skipOnWindows(t)

	opts := testOptions(t)
	opts.JavaHome = "/opt/jdk"

	c, err := Build([]Invocation{shellInvocation(`echo java "$JAVA_HOME" "$PATH"`)}, nil, nil, opts)
	require.NoError(t, err)
	require.True(t, c.Stages()[0].Java)

	res := c.Run(context.Background())
	require.NoError(t, res.Err)
	require.True(t, strings.HasPrefix(string(res.Output), "java /opt/jdk /opt/jdk/bin:"), string(res.Output))
}

func TestBuildRejectsUnresolvedPlaceholder(t *testing.T) {
	_, err := Build([]Invocation{shellInvocation("cat ${missing}")}, nil, nil, testOptions(t))
	var catErr *apperrors.CatalogError
	require.ErrorAs(t, err, &catErr)

	_, err = Build(nil, nil, nil, testOptions(t))
	require.Error(t, err)
}

func TestChainLaunchFailure(t *testing.T) {
	skipOnWindows(t)

	opts := testOptions(t)
	opts.Shell = filepath.Join(t.TempDir(), "no-such-shell")

	c, err := Build([]Invocation{shellInvocation("true")}, strings.NewReader("x"), nil, opts)
	require.NoError(t, err)

	res := c.Run(context.Background())
	require.Equal(t, ExitLaunchFailed, res.ExitCode)
	var procErr *apperrors.ProcessError
	require.ErrorAs(t, res.Err, &procErr)
}

func TestResolve(t *testing.T) {
	repo := fakeCatalog{"text": {Name: "text", Operations: []catalog.Operation{
		{Name: "upper", Command: "tr a-z A-Z"},
	}}}

	invs, err := Resolve(repo, []controlline.Command{{Tool: "text", Action: "upper"}})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	require.Equal(t, "text.upper", invs[0].Name())

	_, err = Resolve(repo, []controlline.Command{{Tool: "text", Action: "lower"}})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = Resolve(repo, []controlline.Command{{Tool: "ghost", Action: "x"}})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tb := newTailBuffer(5)
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defgh"))
	require.Equal(t, "defgh", tb.String())
	_, _ = tb.Write([]byte("ij"))
	require.Equal(t, "fghij", tb.String())
}

type fakeCatalog map[string]*catalog.Tool

func (c fakeCatalog) Tool(name string) (*catalog.Tool, error) {
	if t, ok := c[name]; ok {
		return t, nil
	}
	return nil, apperrors.NewCatalogError(name, "", "tool not found", apperrors.ErrNotFound)
}
