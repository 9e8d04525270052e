package main

import (
	"fmt"
	"io"
	"path"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/partition"
	"github.com/alexisbeaulieu97/toolweave/internal/storage"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

type partitionOptions struct {
	Output        string
	Manifest      string
	LinesPerSplit int
	Policy        string
}

func newPartitionCmd(root *rootFlags) *cobra.Command {
	opts := partitionOptions{}

	cmd := &cobra.Command{
		Use:   "partition <control-file>",
		Short: "Rearrange a control file so each split's lines run near their data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartition(cmd, root, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Rearranged control file (default <control-file>-rearranged<millis>)")
	cmd.Flags().StringVarP(&opts.Manifest, "manifest", "m", "", "Split manifest path (default <output name>.splits.yaml)")
	cmd.Flags().IntVar(&opts.LinesPerSplit, "lines-per-split", 0, "Lines per split, overriding partition.lines_per_split")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "Split policy: fill or spread, overriding partition.policy")

	return cmd
}

func runPartition(cmd *cobra.Command, root *rootFlags, control string, opts partitionOptions) error {
	ctx := commandContext(cmd)

	app, err := loadApp(ctx, cmd, root)
	if err != nil {
		return err
	}
	defer app.Close()

	linesPerSplit := app.cfg.Partition.LinesPerSplit
	if opts.LinesPerSplit > 0 {
		linesPerSplit = opts.LinesPerSplit
	}
	policyName := app.cfg.Partition.Policy
	if opts.Policy != "" {
		policyName = opts.Policy
	}
	policy, err := partition.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	output := opts.Output
	if output == "" {
		output = partition.RearrangedName(control, time.Now())
	}
	manifestPath := opts.Manifest
	if manifestPath == "" {
		manifestPath = defaultManifestPath(output)
	}

	in, err := app.storage.Open(ctx, control)
	if err != nil {
		return newCommandError("open control file", control, err, "Check that the control file exists and is readable.")
	}
	defer in.Close()

	out, err := app.storage.Create(ctx, output)
	if err != nil {
		return newCommandError("create rearranged file", output, err, "Check that the output location is writable.")
	}

	p := partition.New(app.catalog, controlline.NewPipedParser(), app.storage, app.log,
		partition.Options{LinesPerSplit: linesPerSplit, Policy: policy})
	result, err := p.Partition(ctx, in, out, output)
	closeErr := out.Close()
	if err != nil {
		return newCommandError("partition", control, err, "Check the control file and storage settings.")
	}
	if closeErr != nil {
		return newCommandError("write rearranged file", output, closeErr, "Check that the output location is writable.")
	}

	manifest := &partition.Manifest{File: output, LinesPerSplit: linesPerSplit, Policy: policy, Splits: result.Splits}
	if err := partition.WriteManifest(manifestPath, manifest); err != nil {
		return err
	}

	return renderPartition(cmd.OutOrStdout(), output, manifestPath, result)
}

// defaultManifestPath places the manifest beside a local output and in the
// working directory otherwise.
func defaultManifestPath(output string) string {
	if storage.Scheme(output) == "file" {
		return storage.RefPath(output) + ".splits.yaml"
	}
	return path.Base(storage.RefPath(output)) + ".splits.yaml"
}

func renderPartition(w io.Writer, output, manifestPath string, result *partition.Result) error {
	fmt.Fprintf(w, "%s %s (%d bytes)\n", headingStyle.Render("Rearranged:"), output, result.Bytes)
	fmt.Fprintf(w, "%s %s\n\n", headingStyle.Render("Manifest:"), manifestPath)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tLINES")
	for _, hl := range result.Lines {
		fmt.Fprintf(tw, "%s\t%d\n", hostLabel(hl.Host), hl.Lines)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SPLIT\tSTART\tLENGTH\tLINES\tHOSTS")
	for i, s := range result.Splits {
		hosts := strings.Join(s.Hosts, ",")
		if hosts == "" {
			hosts = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\n", i, s.Start, s.Length, s.Lines, hosts)
	}
	return tw.Flush()
}

func hostLabel(host string) string {
	if host == partition.Unlocated {
		return "(no locality)"
	}
	return host
}
