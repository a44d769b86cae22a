package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/pkg/depgraph"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/requirement"
)

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		flags    configFlags
		output   string
		svg      bool
		asJSON   bool
		detailed bool
		expand   bool
	)

	cmd := &cobra.Command{
		Use:   "graph <recipe>",
		Short: "Render a recipe's requirement graph",
		Long: `Render the requirements a recipe declares for a configuration as a Graphviz
DOT graph, as SVG with --svg, or as JSON with --json.

With --expand the graph follows the requirements recorded in the package
store for every published requirement.`,
		Example: `  stackforge graph libdatachannel.toml > deps.dot
  stackforge graph sandbox.toml --profile full --expand --svg -o deps.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := flags.resolve(args[0])
			if err != nil {
				return err
			}
			reqs, err := requirement.Declare(r.recipe.Requirements, r.set, r.profile)
			if err != nil {
				return err
			}
			g, err := depgraph.FromRecipe(r.recipe, reqs)
			if err != nil {
				return err
			}
			if expand {
				lookup, err := c.storeLookup(ctx)
				if err != nil {
					return err
				}
				if err := g.Extend(lookup); err != nil {
					return err
				}
			}
			if err := g.Validate(); err != nil {
				return err
			}
			c.Logger.Debug("requirement graph", "nodes", g.NodeCount(), "edges", g.EdgeCount())

			var data []byte
			switch {
			case asJSON:
				var buf bytes.Buffer
				if err := depgraph.WriteJSON(g, &buf); err != nil {
					return err
				}
				data = buf.Bytes()
			case svg:
				if data, err = depgraph.RenderSVG(ctx, depgraph.ToDOT(g, depgraph.Options{Detailed: detailed})); err != nil {
					return err
				}
			default:
				data = []byte(depgraph.ToDOT(g, depgraph.Options{Detailed: detailed}))
			}

			w, err := openOutput(output)
			if err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				_ = w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			if output != "" && output != "-" {
				printSuccess("Wrote %d packages", g.NodeCount())
				printFile(output)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&output, "out", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&svg, "svg", false, "render SVG instead of DOT")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write the graph as JSON nodes and edges")
	cmd.MarkFlagsMutuallyExclusive("svg", "json")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "label nodes with versions and build flags")
	cmd.Flags().BoolVar(&expand, "expand", false, "follow requirements of published packages")
	return cmd
}

// storeLookup returns a lookup over every package in the store. When a
// package is published in several versions the first listed wins.
func (c *CLI) storeLookup(ctx context.Context) (depgraph.LookupFunc, error) {
	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	infos, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return lookupFrom(infos), nil
}

func lookupFrom(infos []*pkginfo.Info) depgraph.LookupFunc {
	byName := make(map[string][]string, len(infos))
	for _, info := range infos {
		if _, ok := byName[info.Name]; !ok {
			byName[info.Name] = info.Requires
		}
	}
	return func(name string) ([]string, bool) {
		refs, ok := byName[name]
		return refs, ok
	}
}
