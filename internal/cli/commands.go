package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aretw0/strata/internal/presentation/graph"
	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
	"github.com/muesli/termenv"
)

// Output controls how command results are printed.
type Output struct {
	W io.Writer
	// JSON prints machine-readable results.
	JSON bool
	// Pretty renders markdown and colors for a terminal.
	Pretty bool
}

func (o Output) profile() termenv.Profile {
	if o.Pretty {
		return termenv.EnvColorProfile()
	}
	return termenv.Ascii
}

func (o Output) encode(v any) error {
	enc := json.NewEncoder(o.W)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// GenerateOptions are the inputs of the generate command.
type GenerateOptions struct {
	Task   string
	Vars   map[string]any
	Target string
}

// Generate prints the prompt of a task.
func Generate(ctx context.Context, app *App, opts GenerateOptions, out Output) error {
	gen, err := app.System.Generate(ctx, opts.Task, opts.Vars, opts.Target)
	if err != nil {
		return err
	}
	if out.JSON {
		return out.encode(gen)
	}
	text := gen.Text
	if out.Pretty {
		render, err := tui.NewRenderer()
		if err != nil {
			return err
		}
		if text, err = render(gen.Text); err != nil {
			return errors.Wrap(err, "failed to render prompt")
		}
	}
	_, err = fmt.Fprintln(out.W, text)
	return err
}

// Dependencies prints the flattened dependencies of a rule.
func Dependencies(ctx context.Context, app *App, kind domain.Kind, name string, out Output) error {
	deps, err := app.System.Dependencies(ctx, kind, name)
	if err != nil {
		return err
	}
	if out.JSON {
		return out.encode(deps)
	}
	if len(deps) == 0 {
		_, err := fmt.Fprintf(out.W, "%s rule %q has no dependencies\n", kind, name)
		return err
	}

	tw := tabwriter.NewWriter(out.W, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME\tWEIGHT\tORDER\tREQUIRED\tVIA")
	for _, d := range deps {
		via := "-"
		if d.Via != nil {
			via = d.Via.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%d\t%t\t%s\n", d.Type, d.Name, d.Weight, d.OrderIndex, d.IsRequired, via)
	}
	return tw.Flush()
}

// Validate prints the validation report and reports whether the corpus is valid.
func Validate(ctx context.Context, app *App, out Output) (bool, error) {
	report := app.System.ValidateAll(ctx)
	if out.JSON {
		return report.Valid, out.encode(report)
	}
	tui.PrintReport(out.W, report, out.profile())
	return report.Valid, nil
}

// Conflicts prints rules of the same kind sharing a name.
func Conflicts(ctx context.Context, app *App, out Output) (int, error) {
	conflicts, err := app.System.CheckConflicts(ctx)
	if err != nil {
		return 0, err
	}
	if out.JSON {
		if conflicts == nil {
			conflicts = []domain.Conflict{}
		}
		return len(conflicts), out.encode(conflicts)
	}
	if len(conflicts) == 0 {
		_, err := fmt.Fprintln(out.W, "No conflicts found")
		return 0, err
	}
	for _, c := range conflicts {
		fmt.Fprintf(out.W, "%s %q: ids %v\n", c.Kind, c.Name, c.IDs)
	}
	return len(conflicts), nil
}

// Graph prints the Mermaid diagram of a task. Rules that rendered raw are highlighted.
func Graph(ctx context.Context, app *App, task string, vars map[string]any, out Output) error {
	gen, err := app.System.Generate(ctx, task, vars, "")
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out.W, graph.GenerateMermaid(gen.Tree, graph.OverlayOf(gen)))
	return err
}

// CacheStats warms the cache by generating tasks, if any, and prints its usage.
func CacheStats(ctx context.Context, app *App, warm []string, out Output) error {
	for _, task := range warm {
		if _, err := app.System.Generate(ctx, task, nil, ""); err != nil {
			return errors.Wrapf(err, "warming %q", task)
		}
	}
	_, stats := app.System.Optimize()
	if out.JSON {
		return out.encode(stats)
	}
	tw := tabwriter.NewWriter(out.W, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "size\t%d / %d\n", stats.Size, stats.Capacity)
	fmt.Fprintf(tw, "hits\t%d\n", stats.Hits)
	fmt.Fprintf(tw, "misses\t%d\n", stats.Misses)
	fmt.Fprintf(tw, "hit rate\t%.2f\n", stats.HitRate)
	fmt.Fprintf(tw, "evictions\t%d\n", stats.Evictions)
	fmt.Fprintf(tw, "ttl\t%s\n", stats.TTL)
	return tw.Flush()
}
