package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackforge/pkg/option"
	"github.com/matzehuels/stackforge/pkg/platform"
	"github.com/matzehuels/stackforge/pkg/recipe"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// configFlags are the flags every command that resolves a recipe shares.
type configFlags struct {
	platform string
	profile  string
	set      []string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.platform, "platform", "p", "", "target platform os/arch/compiler[/build_type] (default: host)")
	cmd.Flags().StringVar(&f.profile, "profile", "", "recipe profile (default: the recipe's default profile)")
	cmd.Flags().StringArrayVarP(&f.set, "option", "o", nil, "override an option, name=value (repeatable; prefix with recipe: to scope)")
}

// targetPlatform parses --platform, defaulting to the host.
func (f *configFlags) targetPlatform() (platform.Platform, error) {
	if f.platform == "" {
		return platform.Host(), nil
	}
	return platform.Parse(f.platform)
}

// overrides returns the option assignments that apply to the named recipe:
// unscoped ones and those prefixed with "name:".
func (f *configFlags) overrides(name string) (map[string]string, error) {
	var mine []string
	for _, a := range f.set {
		scope, rest, ok := strings.Cut(a, ":")
		switch {
		case !ok || strings.Contains(scope, "="):
			mine = append(mine, a)
		case scope == name:
			mine = append(mine, rest)
		}
	}
	return option.ParseOverrides(mine)
}

// resolved is a recipe with its options resolved for one platform.
type resolved struct {
	recipe    *recipe.Recipe
	platform  platform.Platform
	profile   string
	overrides map[string]string
	set       option.Set
}

func (f *configFlags) resolve(path string) (*resolved, error) {
	rec, err := recipe.Load(path)
	if err != nil {
		return nil, err
	}
	p, err := f.targetPlatform()
	if err != nil {
		return nil, err
	}
	overrides, err := f.overrides(rec.Name)
	if err != nil {
		return nil, err
	}
	profile, err := rec.Profile(f.profile)
	if err != nil {
		return nil, err
	}
	set, err := option.Resolve(rec.Options, p, overrides)
	if err != nil {
		return nil, err
	}
	return &resolved{recipe: rec, platform: p, profile: profile, overrides: overrides, set: set}, nil
}

// writeStructured writes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unsupported format %q (want %s, %s or %s)", format, formatText, formatJSON, formatYAML)
}

func validFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unsupported format %q (want %s, %s or %s)", format, formatText, formatJSON, formatYAML)
}

// openOutput returns stdout for "" or "-", otherwise creates path.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
