package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/requirement"
)

// infoCommand creates the info command.
func (c *CLI) infoCommand() *cobra.Command {
	var (
		dir    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "info [name/version]",
		Short: "Show published package information",
		Long: `Show the package information published for name/version in the store, or
read it from a run's work directory with --dir.`,
		Example: `  stackforge info libdatachannel/0.20.2
  stackforge info --dir .stackforge/libdatachannel-0.20.2 -f yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			info, err := c.loadInfo(cmd, dir, args)
			if err != nil {
				return err
			}
			if format != formatText {
				return writeStructured(os.Stdout, format, info)
			}
			printInfoText(info)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "read package-info from a work directory")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json, yaml")
	return cmd
}

func (c *CLI) loadInfo(cmd *cobra.Command, dir string, args []string) (*pkginfo.Info, error) {
	if dir != "" {
		return pkginfo.ReadFile(dir)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("name/version or --dir is required")
	}
	ref, err := requirement.ParseRef(args[0])
	if err != nil {
		return nil, err
	}
	store, err := c.openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(cmd.Context(), ref.Name, ref.Version)
}

func printInfoText(info *pkginfo.Info) {
	printInfo("%s", StyleTitle.Render(info.Ref()))
	if info.Metadata.Description != "" {
		printDetail("%s", info.Metadata.Description)
	}
	printKeyValue("platform", info.Platform.String())
	if info.Profile != "" {
		printKeyValue("profile", info.Profile)
	}
	printKeyValue("root", info.Root)
	if info.Metadata.License != "" {
		printKeyValue("license", info.Metadata.License)
	}
	if len(info.Requires) > 0 {
		printKeyValue("requires", strings.Join(info.Requires, ", "))
	}
	if !info.PublishedAt.IsZero() {
		printKeyValue("published", info.PublishedAt.Format("2006-01-02 15:04:05"))
	}
	for _, comp := range info.Components {
		name := comp.ID
		if comp.CMakeTarget != "" {
			name += StyleDim.Render(" (" + comp.CMakeTarget + ")")
		}
		printSuccess("%s", name)
		for _, f := range comp.Files {
			printFile(f)
		}
	}
}
