package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/pkg/requirement"
)

type optionRow struct {
	Name    string `json:"name" yaml:"name"`
	Value   string `json:"value,omitempty" yaml:"value,omitempty"`
	Default string `json:"default" yaml:"default"`
	Removed bool   `json:"removed,omitempty" yaml:"removed,omitempty"`
}

// optionsCommand creates the options command.
func (c *CLI) optionsCommand() *cobra.Command {
	var (
		flags  configFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "options <recipe>",
		Short: "Show a recipe's options resolved for a platform",
		Long: `Resolve the recipe's options for the target platform and overrides.

Options removed by the recipe's platform or value rules are listed as removed.`,
		Example: `  stackforge options libdatachannel.toml
  stackforge options libdatachannel.toml -p windows/x86_64/msvc -o shared=true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			r, err := flags.resolve(args[0])
			if err != nil {
				return err
			}

			rows := make([]optionRow, 0, len(r.recipe.Options.Options))
			for _, d := range r.recipe.Options.Options {
				row := optionRow{Name: d.Name, Default: d.Default.String()}
				if v, ok := r.set.Get(d.Name); ok {
					row.Value = v.String()
				} else {
					row.Removed = true
				}
				rows = append(rows, row)
			}
			if format != formatText {
				return writeStructured(os.Stdout, format, rows)
			}

			printInfo("%s on %s", StyleTitle.Render(r.recipe.Ref()), r.platform)
			for _, row := range rows {
				switch {
				case row.Removed:
					printKeyValue(row.Name, StyleDim.Render("removed"))
				case row.Value != row.Default:
					printKeyValue(row.Name, StyleHighlight.Render(row.Value)+StyleDim.Render(" (default "+row.Default+")"))
				default:
					printKeyValue(row.Name, row.Value)
				}
			}
			for _, name := range r.set.Ignored() {
				printWarning("override of %s ignored: option removed for this configuration", name)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json, yaml")
	return cmd
}

// requirementsCommand creates the requirements command.
func (c *CLI) requirementsCommand() *cobra.Command {
	var (
		flags  configFlags
		format string
	)

	cmd := &cobra.Command{
		Use:     "requirements <recipe>",
		Aliases: []string{"reqs"},
		Short:   "List the requirements a recipe declares for a configuration",
		Example: `  stackforge requirements libdatachannel.toml -o USE_GNUTLS=true
  stackforge requirements sandbox.toml --profile full -f yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			r, err := flags.resolve(args[0])
			if err != nil {
				return err
			}
			reqs, err := requirement.Declare(r.recipe.Requirements, r.set, r.profile)
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(os.Stdout, format, reqs)
			}

			title := r.recipe.Ref()
			if r.profile != "" {
				title += " [" + r.profile + "]"
			}
			printInfo("%s requires %d packages", StyleTitle.Render(title), len(reqs))
			for _, req := range reqs {
				line := req.Ref()
				if len(req.Flags) > 0 {
					names := make([]string, len(req.Flags))
					for i, f := range req.Flags {
						names[i] = string(f)
					}
					line += StyleDim.Render(" (" + strings.Join(names, ", ") + ")")
				}
				fmt.Println("  " + line)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json, yaml")
	return cmd
}
