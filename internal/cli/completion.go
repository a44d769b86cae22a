package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/pkg/recipe"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for stackforge.

Completions cover subcommands and flags, recipe files for commands that take
a <recipe> argument (only *.toml files are offered), the profiles declared by
that recipe for --profile, and the output formats for --format.

  $ stackforge run recipes/libd<TAB>            # recipes/libdatachannel.toml
  $ stackforge run recipes/sandbox.toml --profile <TAB>
  minimal  full
  $ stackforge options recipes/libdatachannel.toml -f <TAB>
  json  text  yaml

Bash:
  $ source <(stackforge completion bash)
  $ stackforge completion bash > /etc/bash_completion.d/stackforge

Zsh:
  $ stackforge completion zsh > "${fpath[1]}/_stackforge"

Fish:
  $ stackforge completion fish > ~/.config/fish/completions/stackforge.fish

PowerShell:
  PS> stackforge completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	return cmd
}

// registerCompletions attaches recipe, profile and format completion to
// every subcommand of root that takes them.
func registerCompletions(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		if strings.Contains(cmd.Use, "<recipe>") && cmd.ValidArgsFunction == nil {
			cmd.ValidArgsFunction = completeRecipes
		}
		if cmd.Flags().Lookup("profile") != nil {
			_ = cmd.RegisterFlagCompletionFunc("profile", completeProfiles)
		}
		if cmd.Flags().Lookup("format") != nil {
			_ = cmd.RegisterFlagCompletionFunc("format", completeFormats)
		}
	}
}

func completeRecipes(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{"toml"}, cobra.ShellCompDirectiveFilterFileExt
}

// completeProfiles offers the profiles of the first recipe on the line.
func completeProfiles(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	rec, err := recipe.Load(args[0])
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return rec.Profiles, cobra.ShellCompDirectiveNoFileComp
}

func completeFormats(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{formatJSON, formatText, formatYAML}, cobra.ShellCompDirectiveNoFileComp
}
