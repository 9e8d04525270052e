package partition

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/toolweave/internal/catalog"
	"github.com/alexisbeaulieu97/toolweave/internal/controlline"
	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	"github.com/alexisbeaulieu97/toolweave/internal/storage"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

// Options tunes split sizing.
type Options struct {
	LinesPerSplit int
	Policy        Policy
}

// Partitioner rearranges control files by data locality.
type Partitioner struct {
	catalog catalog.Catalog
	parser  controlline.Parser
	locator storage.Locator
	log     *logger.Logger
	opts    Options
}

// Result is the outcome of one partitioning pass.
type Result struct {
	Splits []Split
	// Bytes is the size of the rearranged file.
	Bytes int64
	// Lines counts lines per host in first-assignment order.
	Lines []HostLines
}

// HostLines is the number of lines placed on one host.
type HostLines struct {
	Host  string
	Lines int
}

// New returns a partitioner. A non-positive LinesPerSplit puts each host's
// lines into a single split.
func New(cat catalog.Catalog, parser controlline.Parser, locator storage.Locator, log *logger.Logger, opts Options) *Partitioner {
	if opts.Policy == "" {
		opts.Policy = PolicyFill
	}
	return &Partitioner{catalog: cat, parser: parser, locator: locator, log: log, opts: opts}
}

// Partition reads control lines from r, writes the rearranged file to w and
// returns its splits, each naming file as its source. A bad line never aborts
// the pass; it is placed without locality.
func (p *Partitioner) Partition(ctx context.Context, r io.Reader, w io.Writer, file string) (*Result, error) {
	plan := newPlanner()

	err := controlline.Scan(r, 0, func(line controlline.Line) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		hist := p.histogram(ctx, line)
		host := plan.place(hist, line.Text)
		p.log.WithFields(map[string]any{
			"line":  line.Number,
			"host":  host,
			"hosts": hist.Len(),
		}).Debug("line placed")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read control file: %w", err)
	}

	splits, size, err := writeGrouped(w, file, plan.locations, p.opts.LinesPerSplit, p.opts.Policy)
	if err != nil {
		return nil, apperrors.NewIOError("write", file, err)
	}

	result := &Result{Splits: splits, Bytes: size}
	for _, host := range plan.locations.Hosts() {
		result.Lines = append(result.Lines, HostLines{Host: host, Lines: plan.locations.Count(host)})
	}

	p.log.WithFields(map[string]any{
		"file":   file,
		"lines":  plan.locations.Total(),
		"hosts":  len(result.Lines),
		"splits": len(splits),
	}).Info("control file partitioned")
	return result, nil
}

// histogram counts block replicas per host over every input file of the
// line's first command and its stdin ref.
func (p *Partitioner) histogram(ctx context.Context, line controlline.Line) *Histogram {
	hist := NewHistogram()
	log := p.log.WithFields(map[string]any{"line": line.Number})

	for _, ref := range p.inputRefs(line, log) {
		files, err := storage.Walk(ctx, p.locator, ref)
		if err != nil {
			if !storage.IsNotExist(err) {
				log.WarnErr(apperrors.NewLocalityError(ref, err), "input skipped")
			}
			continue
		}
		for _, f := range files {
			blocks, err := p.locator.BlockLocations(ctx, f)
			if err != nil {
				log.WarnErr(apperrors.NewLocalityError(f.Ref, err), "block locations unavailable")
				continue
			}
			for _, b := range blocks {
				for _, host := range b.Hosts {
					hist.Add(host)
				}
			}
		}
	}
	return hist
}

func (p *Partitioner) inputRefs(line controlline.Line, log *logger.Logger) []string {
	parsed, err := p.parser.Parse(line)
	if err != nil {
		log.WarnErr(err, "unparseable line placed without locality")
		return nil
	}

	var refs []string
	if parsed.Stdin != "" {
		refs = append(refs, parsed.Stdin)
	}

	first := parsed.Commands[0]
	tool, err := p.catalog.Tool(first.Tool)
	if err != nil {
		log.WarnErr(err, "unknown tool, line placed without locality")
		return refs
	}
	op, ok := tool.FindOperation(first.Action)
	if !ok {
		log.WarnErr(apperrors.NewCatalogError(first.Tool, first.Action, "operation not found", apperrors.ErrNotFound),
			"unknown operation, line placed without locality")
		return refs
	}

	binding := op.Bind(first.Params)
	for _, param := range op.Inputs {
		refs = append(refs, strings.Fields(binding.Inputs[param.Name])...)
	}
	return refs
}

// RearrangedName returns the default name of the rearranged control file.
func RearrangedName(control string, now time.Time) string {
	return fmt.Sprintf("%s-rearranged%d", control, now.UnixMilli())
}
