package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/engine"
	"github.com/alexisbeaulieu97/toolweave/internal/model"
	"github.com/alexisbeaulieu97/toolweave/internal/partition"
	"github.com/alexisbeaulieu97/toolweave/internal/tui"
)

type runOptions struct {
	Manifest       string
	Split          int
	Output         string
	Parallel       int
	KeepScratch    bool
	NoTUI          bool
	NonInteractive bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run [control-file]",
		Short: "Execute every line of a control file, or one split of a manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			control := ""
			if len(args) == 1 {
				control = args[0]
			}
			if err := validateRunOptions(control, opts); err != nil {
				return err
			}
			opts.NonInteractive = opts.NoTUI || opts.Output == "-" || !isTerminal(cmd.OutOrStdout())
			return runRun(cmd, root, control, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Manifest, "manifest", "m", "", "Split manifest written by partition")
	cmd.Flags().IntVarP(&opts.Split, "split", "s", -1, "Split index to run (default all splits)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "-", "Results file (JSON lines), - for stdout")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 0, "Concurrent chains, overriding execution.parallel")
	cmd.Flags().BoolVar(&opts.KeepScratch, "keep-scratch", false, "Keep per-line scratch directories")
	cmd.Flags().BoolVar(&opts.NoTUI, "no-tui", false, "Disable the interactive progress view")

	return cmd
}

func runRun(cmd *cobra.Command, root *rootFlags, control string, opts runOptions) error {
	ctx := commandContext(cmd)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := loadApp(ctx, cmd, root)
	if err != nil {
		return err
	}
	defer app.Close()

	settings := engine.SettingsFromConfig(app.cfg.Execution)
	if opts.Parallel > 0 {
		settings.Parallel = opts.Parallel
	}
	settings.KeepScratch = settings.KeepScratch || opts.KeepScratch

	ec, err := engine.NewExecutionContext(app.catalog, controlline.NewPipedParser(), app.storage, app.log, settings)
	if err != nil {
		return err
	}

	title, lines, err := collectLines(ctx, ec, control, opts)
	if err != nil {
		return err
	}

	var results io.Writer = cmd.OutOrStdout()
	if opts.Output != "-" {
		w, err := app.storage.Create(ctx, opts.Output)
		if err != nil {
			return newCommandError("create results file", opts.Output, err, "Check that the output location is writable.")
		}
		defer w.Close()
		results = w
	}

	modelState := tui.NewModel(title, lines, opts.NonInteractive)
	interactive := !opts.NonInteractive

	var program *tea.Program
	var programErr error
	done := make(chan struct{})

	if interactive {
		program = tea.NewProgram(modelState)
		go func() {
			final, err := program.Run()
			programErr = err
			if m, ok := final.(tui.Model); ok && m.Cancelled() {
				cancel()
			}
			close(done)
		}()
	}

	ex := engine.NewExecutor(ec)
	if interactive {
		ex.OnStart = func(line controlline.Line) {
			program.Send(tui.LineStartMsg{Line: line, Time: time.Now()})
		}
		ex.OnComplete = func(res model.LineResult) {
			program.Send(tui.LineCompleteMsg{Result: res})
		}
	}

	started := time.Now()
	lineResults, runErr := ex.Run(ctx, lines)
	report := engine.NewReport(lineResults, time.Since(started))

	if err := engine.NewResultWriter(results).WriteAll(lineResults); err != nil {
		return err
	}

	if interactive {
		program.Send(tui.ReportMsg{Text: report.String()})
		program.Send(tea.QuitMsg{})
		<-done
		if programErr != nil {
			return programErr
		}
	} else {
		for _, res := range lineResults {
			dispatchTuiMessage(&modelState, tui.LineCompleteMsg{Result: res})
		}
		dispatchTuiMessage(&modelState, tui.ReportMsg{Text: report.String()})
		if opts.Output == "-" {
			fmt.Fprintln(cmd.ErrOrStderr(), report.String())
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), modelState.View())
		}
	}

	if runErr != nil {
		return runErr
	}
	if report.Failed > 0 {
		return &exitCodeError{code: 1, err: fmt.Errorf("%d of %d lines failed", report.Failed, report.Total)}
	}
	return nil
}

// collectLines reads the work units of a run: the splits of a manifest or
// every line of a control file.
func collectLines(ctx context.Context, ec *engine.ExecutionContext, control string, opts runOptions) (string, []controlline.Line, error) {
	if opts.Manifest == "" {
		rc, err := ec.Storage.Open(ctx, control)
		if err != nil {
			return "", nil, newCommandError("open control file", control, err, "Check that the control file exists and is readable.")
		}
		defer rc.Close()
		lines, err := controlline.ReadAll(rc, 0)
		if err != nil {
			return "", nil, newCommandError("read control file", control, err, "Check that the control file is readable text.")
		}
		return control, lines, nil
	}

	manifest, err := partition.ReadManifest(opts.Manifest)
	if err != nil {
		return "", nil, newCommandError("read manifest", opts.Manifest, err, "Run 'toolweave partition' to produce a manifest.")
	}

	splits := manifest.Splits
	title := manifest.File
	if opts.Split >= 0 {
		s, err := manifest.Split(opts.Split)
		if err != nil {
			return "", nil, err
		}
		splits = []partition.Split{s}
		title = s.String()
	}

	var lines []controlline.Line
	for _, s := range splits {
		part, err := engine.ReadSplit(ctx, ec.Storage, s)
		if err != nil {
			return "", nil, newCommandError("read split", s.String(), err, "Check that the rearranged file matches its manifest.")
		}
		lines = append(lines, part...)
	}
	return title, lines, nil
}

func dispatchTuiMessage(state *tui.Model, msg tea.Msg) {
	updated, _ := state.Update(msg)
	if m, ok := updated.(tui.Model); ok {
		*state = m
	}
}
