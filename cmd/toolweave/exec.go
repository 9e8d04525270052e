package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/engine"
)

func newExecCmd(root *rootFlags) *cobra.Command {
	keepScratch := false

	cmd := &cobra.Command{
		Use:   "exec <control-line>",
		Short: "Execute a single control line and print its output",
		Example: `  toolweave exec 'text upper --input=data/in.txt --output=data/out.txt'
  toolweave exec data/in.txt '>' text cat '|' text count`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, root, strings.Join(args, " "), keepScratch)
		},
	}

	cmd.Flags().BoolVar(&keepScratch, "keep-scratch", false, "Keep the scratch directory")

	return cmd
}

func runExec(cmd *cobra.Command, root *rootFlags, text string, keepScratch bool) error {
	ctx := commandContext(cmd)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	app, err := loadApp(ctx, cmd, root)
	if err != nil {
		return err
	}
	defer app.Close()

	settings := engine.SettingsFromConfig(app.cfg.Execution)
	settings.KeepScratch = settings.KeepScratch || keepScratch

	ec, err := engine.NewExecutionContext(app.catalog, controlline.NewPipedParser(), app.storage, app.log, settings)
	if err != nil {
		return err
	}

	res := engine.RunLine(ctx, ec, controlline.Line{Number: 1, Text: text})
	if !res.Succeeded() {
		return &exitCodeError{code: processExitCode(res.ExitCode), err: fmt.Errorf("%s", res.Output)}
	}

	fmt.Fprint(cmd.OutOrStdout(), res.Output)
	if res.OutputPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "output written to %s\n", res.OutputPath)
	}
	return nil
}

// processExitCode maps a chain status onto a process exit status. Sentinels
// and out-of-range codes become 1.
func processExitCode(code int) int {
	if code <= 0 || code > 255 {
		return 1
	}
	return code
}
