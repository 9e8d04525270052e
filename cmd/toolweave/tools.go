package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/toolweave/internal/catalog"
)

func newToolsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools of the toolspec repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, root)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <tool>",
		Short: "Show the operations of one tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolShow(cmd, root, args[0])
		},
	})

	return cmd
}

func runTools(cmd *cobra.Command, root *rootFlags) error {
	app, err := loadApp(commandContext(cmd), cmd, root)
	if err != nil {
		return err
	}
	defer app.Close()

	tools := app.catalog.List()
	if len(tools) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No toolspecs found in %s.\n", app.catalog.Dir())
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tVERSION\tOPERATIONS\tDESCRIPTION")
	for _, tool := range tools {
		ops := make([]string, 0, len(tool.Operations))
		for _, op := range tool.Operations {
			ops = append(ops, op.Name)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			tool.Name,
			valueOrFallback(tool.Version, "-"),
			strings.Join(ops, ","),
			tool.Description,
		)
	}
	return writer.Flush()
}

func runToolShow(cmd *cobra.Command, root *rootFlags, name string) error {
	app, err := loadApp(commandContext(cmd), cmd, root)
	if err != nil {
		return err
	}
	defer app.Close()

	tool, err := app.catalog.Tool(name)
	if err != nil {
		return newCommandError("show tool", name, err, "Run 'toolweave tools' to list available tools.")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", headingStyle.Render(tool.Name), tool.Version)
	if tool.Description != "" {
		fmt.Fprintln(out, tool.Description)
	}
	for _, op := range tool.Operations {
		fmt.Fprintf(out, "\n  %s: %s\n", op.Name, op.Command)
		if op.IsJava() {
			fmt.Fprintln(out, "    runs on the JVM")
		}
		printParams(out, "inputs", op.Inputs)
		printParams(out, "outputs", op.Outputs)
		printParams(out, "parameters", op.Parameters)
	}
	return nil
}

func printParams(out io.Writer, label string, params []catalog.Param) {
	if len(params) == 0 {
		return
	}
	names := make([]string, 0, len(params))
	for _, p := range params {
		if p.Default != "" {
			names = append(names, fmt.Sprintf("%s=%s", p.Name, p.Default))
			continue
		}
		names = append(names, p.Name)
	}
	fmt.Fprintf(out, "    %s: %s\n", label, strings.Join(names, ", "))
}

func valueOrFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
