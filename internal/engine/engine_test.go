package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/toolweave/internal/catalog"
	"github.com/alexisbeaulieu97/toolweave/internal/chain"
	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	"github.com/alexisbeaulieu97/toolweave/internal/model"
	"github.com/alexisbeaulieu97/toolweave/internal/partition"
	"github.com/alexisbeaulieu97/toolweave/internal/storage"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

type fakeCatalog map[string]*catalog.Tool

func (c fakeCatalog) Tool(name string) (*catalog.Tool, error) {
	if t, ok := c[name]; ok {
		return t, nil
	}
	return nil, apperrors.NewCatalogError(name, "", "tool not found", apperrors.ErrNotFound)
}

func textTool() fakeCatalog {
	return fakeCatalog{"text": {
		Name: "text",
		Operations: []catalog.Operation{
			{
				Name:    "upper",
				Command: "tr a-z A-Z < ${input} > ${output}",
				Inputs:  []catalog.Param{{Name: "input"}},
				Outputs: []catalog.Param{{Name: "output"}},
			},
			{Name: "cat", Command: "cat"},
			{Name: "echo", Command: "echo ${word}", Parameters: []catalog.Param{{Name: "word", Default: "hi"}}},
			{Name: "fail", Command: "echo broken >&2; exit 3"},
		},
	}}
}

func newTestContext(t *testing.T, settings Settings) *ExecutionContext {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("engine tests rely on POSIX tools")
	}
	if settings.ScratchRoot == "" {
		settings.ScratchRoot = t.TempDir()
	}
	settings.Shell = "/bin/sh"
	if settings.LinkTimeout == 0 {
		settings.LinkTimeout = 10 * time.Second
	}
	settings.TerminateOnCancel = true

	fs := storage.NewResolver(storage.NewLocal(0, []string{"h1"}))
	ec, err := NewExecutionContext(textTool(), nil, fs, logger.Nop(), settings)
	require.NoError(t, err)
	return ec
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRunLineStagesInputsAndOutputs(t *testing.T) {
	ec := newTestContext(t, Settings{})
	data := t.TempDir()
	in := filepath.Join(data, "in.txt")
	out := filepath.Join(data, "out", "up.txt")
	writeFile(t, in, "hello\n")

	line := controlline.Line{Number: 1, Offset: 7, Text: fmt.Sprintf("text upper --input=%s --output=%s", in, out)}
	res := RunLine(context.Background(), ec, line)

	require.Equal(t, model.StatusSuccess, res.Status, res.Error)
	require.Equal(t, int64(7), res.Offset)
	require.Equal(t, 0, res.ExitCode)
	require.Positive(t, res.Duration)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "HELLO\n", string(got))
	requireEmptyDir(t, ec.Settings.ScratchRoot)
}

func TestRunLineStreamsRedirects(t *testing.T) {
	ec := newTestContext(t, Settings{})
	data := t.TempDir()
	in := filepath.Join(data, "in.txt")
	out := filepath.Join(data, "result.txt")
	writeFile(t, in, "b\na\n")

	line := controlline.Line{Number: 1, Text: fmt.Sprintf("%s > text cat | text cat > %s", in, out)}
	res := RunLine(context.Background(), ec, line)

	require.True(t, res.Succeeded(), res.Error)
	require.Equal(t, out, res.OutputPath)
	require.Empty(t, res.Output)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "b\na\n", string(got))
}

func TestRunLineCollectsOutputWithoutRedirect(t *testing.T) {
	ec := newTestContext(t, Settings{})

	res := RunLine(context.Background(), ec, controlline.Line{Number: 1, Text: "text echo --word=bonjour"})
	require.True(t, res.Succeeded(), res.Error)
	require.Equal(t, "bonjour\n", res.Output)

	res = RunLine(context.Background(), ec, controlline.Line{Number: 2, Text: "text echo --word=x --color=red"})
	require.True(t, res.Succeeded(), "undeclared parameters are ignored")
	require.Equal(t, "x\n", res.Output)
}

func TestRunLineRecordsFailures(t *testing.T) {
	ec := newTestContext(t, Settings{})
	missing := filepath.Join(t.TempDir(), "absent.txt")

	tests := []struct {
		name     string
		text     string
		exitCode int
		check    func(t *testing.T, err error)
	}{
		{
			name:     "tool exit code",
			text:     "text fail",
			exitCode: 3,
			check: func(t *testing.T, err error) {
				var procErr *apperrors.ProcessError
				require.ErrorAs(t, err, &procErr)
				require.Contains(t, procErr.Stderr, "broken")
			},
		},
		{
			name:     "malformed line",
			text:     "text",
			exitCode: ExitSetupFailed,
			check: func(t *testing.T, err error) {
				var parseErr *apperrors.ParseError
				require.ErrorAs(t, err, &parseErr)
			},
		},
		{
			name:     "unknown tool",
			text:     "ghost run",
			exitCode: ExitSetupFailed,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, apperrors.ErrNotFound)
			},
		},
		{
			name:     "missing input",
			text:     fmt.Sprintf("text upper --input=%s --output=%s.out", missing, missing),
			exitCode: ExitSetupFailed,
			check: func(t *testing.T, err error) {
				require.True(t, storage.IsNotExist(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := RunLine(context.Background(), ec, controlline.Line{Number: 1, Offset: 100, Text: tt.text})
			require.Equal(t, model.StatusFailed, res.Status)
			require.Equal(t, tt.exitCode, res.ExitCode)
			require.True(t, strings.HasPrefix(res.Output, model.ErrorPrefix), res.Output)
			require.Equal(t, int64(100), res.Offset)
			tt.check(t, res.Err)
		})
	}
	requireEmptyDir(t, ec.Settings.ScratchRoot)
}

func TestRunLineKeepsScratchWhenAsked(t *testing.T) {
	ec := newTestContext(t, Settings{KeepScratch: true})

	res := RunLine(context.Background(), ec, controlline.Line{Number: 1, Text: "text echo"})
	require.True(t, res.Succeeded(), res.Error)

	entries, err := os.ReadDir(ec.Settings.ScratchRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].IsDir())
}

func TestRunLineTimeout(t *testing.T) {
	ec := newTestContext(t, Settings{LinkTimeout: 200 * time.Millisecond})
	ec.Catalog = fakeCatalog{"slow": {Name: "slow", Operations: []catalog.Operation{{Name: "sleep", Command: "sleep 5"}}}}

	res := RunLine(context.Background(), ec, controlline.Line{Number: 1, Text: "slow sleep"})
	require.Equal(t, chain.ExitTimeout, res.ExitCode)
	var timeoutErr *apperrors.TimeoutError
	require.ErrorAs(t, res.Err, &timeoutErr)
}

func TestExecutorKeepsInputOrder(t *testing.T) {
	ec := newTestContext(t, Settings{Parallel: 3})

	var lines []controlline.Line
	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("text echo --word=w%d", i)
		if i == 5 {
			text = "text fail"
		}
		lines = append(lines, controlline.Line{Number: i + 1, Offset: int64(i * 10), Text: text})
	}

	var mu sync.Mutex
	started, completed := 0, 0
	ex := NewExecutor(ec)
	ex.OnStart = func(controlline.Line) {
		mu.Lock()
		started++
		mu.Unlock()
	}
	ex.OnComplete = func(model.LineResult) {
		mu.Lock()
		completed++
		mu.Unlock()
	}

	results, err := ex.Run(context.Background(), lines)
	require.NoError(t, err)
	require.Len(t, results, len(lines))
	require.Equal(t, len(lines), started)
	require.Equal(t, len(lines), completed)

	for i, res := range results {
		require.Equal(t, int64(i*10), res.Offset)
		if i == 5 {
			require.Equal(t, model.StatusFailed, res.Status)
			continue
		}
		require.Equal(t, fmt.Sprintf("w%d\n", i), res.Output)
	}
}

func TestExecutorCancelledBeforeStart(t *testing.T) {
	ec := newTestContext(t, Settings{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lines := []controlline.Line{{Number: 1, Text: "text echo"}, {Number: 2, Offset: 10, Text: "text echo"}}
	results, err := NewExecutor(ec).Run(ctx, lines)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, res := range results {
		require.Equal(t, model.StatusFailed, res.Status)
		require.Equal(t, chain.ExitTimeout, res.ExitCode)
	}
}

func TestExecutorRunSplit(t *testing.T) {
	ec := newTestContext(t, Settings{})
	control := filepath.Join(t.TempDir(), "control.txt")
	first := "text echo --word=one\n"
	second := "text echo --word=two\ntext echo --word=three\n"
	writeFile(t, control, first+second)

	split := partition.Split{File: control, Start: int64(len(first)), Length: int64(len(second))}
	results, err := NewExecutor(ec).RunSplit(context.Background(), ec.Storage, split)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, int64(len(first)), results[0].Offset)
	require.Equal(t, "two\n", results[0].Output)
	require.Equal(t, "three\n", results[1].Output)
}

func TestNewExecutionContextDefaults(t *testing.T) {
	fs := storage.NewLocal(0, []string{"h1"})
	ec, err := NewExecutionContext(textTool(), nil, fs, nil, Settings{})
	require.NoError(t, err)
	require.NotNil(t, ec.Parser)
	require.NotNil(t, ec.Stager)
	require.Equal(t, 4, ec.Settings.Parallel)
	require.Equal(t, chain.DefaultLinkTimeout, ec.Settings.LinkTimeout)
	require.NotEmpty(t, ec.Settings.ScratchRoot)

	_, err = NewExecutionContext(nil, nil, fs, nil, Settings{})
	var valErr *apperrors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestNewReport(t *testing.T) {
	var results []model.LineResult
	for i := 1; i <= 100; i++ {
		status := model.StatusSuccess
		if i%10 == 0 {
			status = model.StatusFailed
		}
		results = append(results, model.LineResult{Status: status, Duration: time.Duration(i) * time.Millisecond})
	}

	rep := NewReport(results, 2*time.Second)
	require.Equal(t, 100, rep.Total)
	require.Equal(t, 90, rep.Succeeded)
	require.Equal(t, 10, rep.Failed)
	require.InDelta(t, float64(50*time.Millisecond), float64(rep.P50), float64(time.Millisecond))
	require.InDelta(t, float64(99*time.Millisecond), float64(rep.P99), float64(time.Millisecond))
	require.InDelta(t, float64(100*time.Millisecond), float64(rep.Max), float64(time.Millisecond))
	require.Contains(t, rep.String(), "100 lines, 90 succeeded, 10 failed")

	empty := NewReport(nil, 0)
	require.Zero(t, empty.P50)
}

func TestResultWriterEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	rw := NewResultWriter(&buf)

	ok := model.LineResult{Offset: 0, Number: 1, Line: "text echo", Status: model.StatusSuccess, Output: "hi\n"}
	failed := model.LineResult{Offset: 10, Number: 2, Line: "text fail"}
	failed.Fail(3, fmt.Errorf("process exited with code 3"))
	require.NoError(t, rw.WriteAll([]model.LineResult{ok, failed}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], `"offset":10`)
	require.Contains(t, lines[1], `"output":"ERROR: process exited with code 3"`)
	require.NotContains(t, lines[0], `"error"`)

	decoded, err := ReadResults(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, 3, decoded[1].ExitCode)
	require.Equal(t, model.StatusFailed, decoded[1].Status)

	_, err = ReadResults(strings.NewReader("{not json}\n"))
	var parseErr *apperrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}
