// Package chain runs a sequence of tool invocations as concurrently running
// subprocesses connected by OS pipes, optionally fed from a source stream and
// always drained into a sink.
package chain

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/toolweave/internal/catalog"
	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// DefaultLinkTimeout bounds every wait of a chain when Options leaves it unset.
const DefaultLinkTimeout = 10 * time.Minute

// Invocation is one resolved command: its operation and bound parameter values.
type Invocation struct {
	Tool      string
	Operation *catalog.Operation
	Binding   catalog.Binding
}

// Name identifies the invocation in logs and errors.
func (inv Invocation) Name() string {
	return inv.Tool + "." + inv.Operation.Name
}

// Resolve looks up every command's operation and binds its parameters.
func Resolve(cat catalog.Catalog, cmds []controlline.Command) ([]Invocation, error) {
	invs := make([]Invocation, 0, len(cmds))
	for _, cmd := range cmds {
		tool, err := cat.Tool(cmd.Tool)
		if err != nil {
			return nil, err
		}
		op, ok := tool.FindOperation(cmd.Action)
		if !ok {
			return nil, apperrors.NewCatalogError(cmd.Tool, cmd.Action, "operation not found", apperrors.ErrNotFound)
		}
		invs = append(invs, Invocation{Tool: tool.Name, Operation: op, Binding: op.Bind(cmd.Params)})
	}
	return invs, nil
}

// Options configures how tool stages are launched and awaited.
type Options struct {
	WorkDir string
	// Shell overrides the shell used to run commands (default bash, then sh).
	Shell string
	// JavaHome is prepended (as JavaHome/bin) to PATH for JVM tools.
	JavaHome    string
	LinkTimeout time.Duration
	// TerminateOnCancel kills running subprocesses when the chain is cancelled.
	TerminateOnCancel bool
	Env               map[string]string
	Log               *logger.Logger
}

// Chain is an ordered slice of stages. Neighbours are found by index.
type Chain struct {
	stages []*Stage
	opts   Options
	buffer *bytes.Buffer
}

// Build renders every invocation and assembles source, tool and sink stages.
// A nil stdin omits the source; a nil stdout collects output in memory. No
// process is spawned here, so every construction error surfaces before launch.
func Build(invs []Invocation, stdin io.Reader, stdout io.Writer, opts Options) (*Chain, error) {
	if len(invs) == 0 {
		return nil, apperrors.NewValidationError("chain", "at least one command is required", nil)
	}
	if opts.LinkTimeout <= 0 {
		opts.LinkTimeout = DefaultLinkTimeout
	}

	shell, shellArgs, err := determineShell(opts.Shell)
	if err != nil {
		return nil, err
	}

	c := &Chain{opts: opts}
	if stdin != nil {
		c.stages = append(c.stages, &Stage{Kind: KindSource, Name: "source", source: stdin})
	}

	for i, inv := range invs {
		rendered, err := inv.Operation.Render(inv.Tool, inv.Binding)
		if err != nil {
			return nil, err
		}
		if len(inv.Binding.Unknown) > 0 {
			opts.Log.WithFields(map[string]any{
				"stage":   inv.Name(),
				"ignored": strings.Join(inv.Binding.Unknown, ","),
			}).Warn("undeclared parameters ignored")
		}

		c.stages = append(c.stages, &Stage{
			Kind:    KindTool,
			Name:    fmt.Sprintf("%s#%d", inv.Name(), i),
			Command: rendered,
			Java:    inv.Operation.IsJava(),
			shell:   shell,
			args:    append(append([]string(nil), shellArgs...), rendered),
		})
	}

	sink := stdout
	if sink == nil {
		c.buffer = &bytes.Buffer{}
		sink = c.buffer
	}
	c.stages = append(c.stages, &Stage{Kind: KindSink, Name: "sink", sink: sink})

	return c, nil
}

// Stages returns the chain's stages in order.
func (c *Chain) Stages() []*Stage {
	return c.stages
}

func (c *Chain) env(java bool) []string {
	env := buildEnv(c.opts.Env)
	if !java || c.opts.JavaHome == "" {
		return env
	}

	bin := filepath.Join(c.opts.JavaHome, "bin")
	path := bin
	if current := os.Getenv("PATH"); current != "" {
		path = bin + string(os.PathListSeparator) + current
	}
	return append(env, "JAVA_HOME="+c.opts.JavaHome, "PATH="+path)
}

func determineShell(explicit string) (string, []string, error) {
	if explicit != "" {
		return explicit, []string{"-c"}, nil
	}

	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}, nil
	}

	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c"}, nil
	}

	if path, err := exec.LookPath("sh"); err == nil {
		return path, []string{"-c"}, nil
	}

	return "", nil, apperrors.NewValidationError("shell", "no suitable shell found", nil)
}

func buildEnv(custom map[string]string) []string {
	env := os.Environ()
	for k, v := range custom {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
