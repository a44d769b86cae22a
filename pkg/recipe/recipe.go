// Package recipe loads recipe files.
//
// A recipe is a TOML document describing one package: metadata, upstream
// source and patches, the option schema with its pruning rules,
// option-conditioned requirements, the option-to-build-variable mapping with
// fixed policy keys, and the components the installed package exposes.
// Loading converts the document into the data types the lifecycle packages
// work with and validates it as a whole, so an inconsistent recipe fails
// before any stage runs.
package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackforge/pkg/buildconfig"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/option"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/requirement"
	"github.com/matzehuels/stackforge/pkg/source"
)

// Recipe is a loaded, validated recipe.
type Recipe struct {
	Name     string
	Version  string
	Metadata pkginfo.Metadata
	Settings []string

	Profiles       []string
	DefaultProfile string

	Source  *source.Spec // nil for consumer recipes with nothing to build
	Patches []source.PatchSpec

	Options      option.Schema
	Requirements []requirement.Decl

	Variables buildconfig.Mapping
	Policy    buildconfig.Policy
	Generator string

	Components []pkginfo.Decl

	// Dir is the directory the recipe was loaded from; patch paths are
	// relative to it.
	Dir  string
	Path string
}

// Ref returns "name/version".
func (r *Recipe) Ref() string { return r.Name + "/" + r.Version }

// Buildable reports whether the recipe has a source to build.
func (r *Recipe) Buildable() bool { return r.Source != nil }

// Profile resolves the requested profile name against the recipe. An empty
// name selects the default profile. Unknown profiles are a ConfigurationError.
func (r *Recipe) Profile(name string) (string, error) {
	if name == "" {
		return r.DefaultProfile, nil
	}
	if !slices.Contains(r.Profiles, name) {
		if len(r.Profiles) == 0 {
			return "", errors.Configuration("recipe %s declares no profiles, got %q", r.Name, name)
		}
		return "", errors.Configuration("unknown profile %q (declared: %s)", name, strings.Join(r.Profiles, ", "))
	}
	return name, nil
}

// Load reads and validates the recipe file at path. A directory is taken to
// contain a recipe.toml.
func Load(path string) (*Recipe, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "recipe.toml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read recipe")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "resolve %s", path)
	}
	r, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.Path = abs
	return r, nil
}

// Parse decodes and validates a recipe document. dir anchors patch paths.
func Parse(data []byte, dir string) (*Recipe, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRecipe, err, "decode recipe")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.ErrCodeInvalidRecipe, "unknown recipe keys: %s", strings.Join(keys, ", "))
	}

	r, errs := doc.convert()
	if len(errs) > 0 {
		return nil, errors.Join(errors.ErrCodeInvalidRecipe, errs)
	}
	r.Dir = dir
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the recipe's parts against each other. All problems are
// reported together.
func (r *Recipe) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(errors.ValidatePackageName(r.Name))
	add(errors.ValidateVersion(r.Version))
	for _, s := range r.Settings {
		if !slices.Contains(settingNames, s) {
			errs = append(errs, fmt.Errorf("unknown setting %q", s))
		}
	}

	seen := map[string]bool{}
	for _, p := range r.Profiles {
		if p == "" || seen[p] {
			errs = append(errs, fmt.Errorf("invalid or duplicate profile %q", p))
		}
		seen[p] = true
	}
	if r.DefaultProfile != "" && !seen[r.DefaultProfile] {
		errs = append(errs, fmt.Errorf("default profile %q is not declared", r.DefaultProfile))
	}
	if len(r.Profiles) > 0 && r.DefaultProfile == "" {
		errs = append(errs, fmt.Errorf("recipe declares profiles but no default_profile"))
	}

	add(r.Options.Validate())
	add(requirement.Validate(r.Requirements, r.Options, r.Profiles))
	add(buildconfig.Validate(r.Variables, r.Policy, r.Options))

	if r.Source != nil {
		add(r.Source.Validate())
		if len(r.Components) == 0 {
			errs = append(errs, fmt.Errorf("buildable recipe declares no components"))
		}
		add(pkginfo.Validate(r.Components))
	} else if len(r.Patches) > 0 {
		errs = append(errs, fmt.Errorf("patches declared without a source"))
	}
	for _, p := range r.Patches {
		add(errors.ValidatePath(p.Path))
	}
	return errors.Join(errors.ErrCodeConfiguration, errs)
}

var settingNames = []string{"arch", "build_type", "compiler", "os"}

// Summary returns a one-line description for listings.
func (r *Recipe) Summary() string {
	var b strings.Builder
	b.WriteString(r.Ref())
	if len(r.Profiles) > 0 {
		ps := slices.Clone(r.Profiles)
		sort.Strings(ps)
		fmt.Fprintf(&b, " [profiles: %s]", strings.Join(ps, ", "))
	}
	if r.Metadata.Description != "" {
		b.WriteString(" - " + r.Metadata.Description)
	}
	return b.String()
}
