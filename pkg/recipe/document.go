package recipe

import (
	"fmt"
	"sort"

	"github.com/matzehuels/stackforge/pkg/buildconfig"
	"github.com/matzehuels/stackforge/pkg/option"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/requirement"
	"github.com/matzehuels/stackforge/pkg/source"
)

// document mirrors the TOML layout of a recipe file.
type document struct {
	Name           string   `toml:"name"`
	Version        string   `toml:"version"`
	PackageType    string   `toml:"package_type"`
	Description    string   `toml:"description"`
	License        string   `toml:"license"`
	Author         string   `toml:"author"`
	URL            string   `toml:"url"`
	Topics         []string `toml:"topics"`
	Settings       []string `toml:"settings"`
	Profiles       []string `toml:"profiles"`
	DefaultProfile string   `toml:"default_profile"`

	Source     *sourceDoc     `toml:"source"`
	Options    []optionDoc    `toml:"options"`
	Prune      []pruneDoc     `toml:"prune"`
	Requires   []requireDoc   `toml:"requires"`
	Generate   generateDoc    `toml:"generate"`
	Components []componentDoc `toml:"components"`
}

type sourceDoc struct {
	URL            string     `toml:"url"`
	Revision       string     `toml:"revision"`
	Submodules     *bool      `toml:"submodules"`
	SubmoduleDepth *int       `toml:"submodule_depth"`
	Patches        []patchDoc `toml:"patches"`
}

type patchDoc struct {
	Path        string `toml:"path"`
	Description string `toml:"description"`
}

type optionDoc struct {
	Name        string   `toml:"name"`
	Type        string   `toml:"type"`
	Values      []string `toml:"values"`
	Default     any      `toml:"default"`
	Description string   `toml:"description"`
}

type pruneDoc struct {
	Option   string              `toml:"option"`
	Settings map[string][]string `toml:"settings"`
	When     map[string]any      `toml:"when"`
	Reason   string              `toml:"reason"`
}

type requireDoc struct {
	Ref      string         `toml:"ref"`
	Flags    []string       `toml:"flags"`
	When     map[string]any `toml:"when"`
	Unless   map[string]any `toml:"unless"`
	Profiles []string       `toml:"profiles"`
}

type generateDoc struct {
	Generator string         `toml:"generator"`
	Variables []variableDoc  `toml:"variables"`
	Policy    map[string]any `toml:"policy"`
}

type variableDoc struct {
	Key    string `toml:"key"`
	Option string `toml:"option"`
	Negate bool   `toml:"negate"`
}

type componentDoc struct {
	ID            string   `toml:"id"`
	Name          string   `toml:"name"`
	CMakeTarget   string   `toml:"cmake_target"`
	PkgConfigName string   `toml:"pkg_config_name"`
	Libs          []string `toml:"libs"`
	Requires      []string `toml:"requires"`
}

// convert turns the decoded document into a Recipe, collecting every
// conversion problem instead of stopping at the first.
func (d *document) convert() (*Recipe, []error) {
	var errs []error
	r := &Recipe{
		Name:    d.Name,
		Version: d.Version,
		Metadata: pkginfo.Metadata{
			Description: d.Description,
			License:     d.License,
			Author:      d.Author,
			URL:         d.URL,
			Topics:      d.Topics,
			PackageType: d.PackageType,
		},
		Settings:       d.Settings,
		Profiles:       d.Profiles,
		DefaultProfile: d.DefaultProfile,
		Generator:      d.Generate.Generator,
	}

	if d.Source != nil {
		spec := source.Spec{
			URL:            d.Source.URL,
			Revision:       d.Source.Revision,
			Submodules:     true,
			SubmoduleDepth: source.DefaultSubmoduleDepth,
		}
		if d.Source.Submodules != nil {
			spec.Submodules = *d.Source.Submodules
		}
		if d.Source.SubmoduleDepth != nil {
			spec.SubmoduleDepth = *d.Source.SubmoduleDepth
		}
		r.Source = &spec
		for _, p := range d.Source.Patches {
			r.Patches = append(r.Patches, source.PatchSpec{Path: p.Path, Description: p.Description})
		}
	}

	kinds := make(map[string]option.Kind, len(d.Options))
	for _, o := range d.Options {
		decl, err := o.convert()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		kinds[decl.Name] = decl.Kind
		r.Options.Options = append(r.Options.Options, decl)
	}

	for _, p := range d.Prune {
		when, err := conditions(p.When)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", p.Option, err))
			continue
		}
		r.Options.Rules = append(r.Options.Rules, option.Rule{
			Target:   p.Option,
			Settings: p.Settings,
			When:     when,
			Reason:   p.Reason,
		})
	}

	for _, q := range d.Requires {
		decl := requirement.Decl{Ref: q.Ref, Profiles: q.Profiles}
		var err error
		if decl.When, err = conditions(q.When); err != nil {
			errs = append(errs, fmt.Errorf("requires %s: %w", q.Ref, err))
		}
		if decl.Unless, err = conditions(q.Unless); err != nil {
			errs = append(errs, fmt.Errorf("requires %s: %w", q.Ref, err))
		}
		for _, f := range q.Flags {
			flag, err := requirement.ParseFlag(f)
			if err != nil {
				errs = append(errs, fmt.Errorf("requires %s: %w", q.Ref, err))
				continue
			}
			decl.Flags = append(decl.Flags, flag)
		}
		r.Requirements = append(r.Requirements, decl)
	}

	for _, v := range d.Generate.Variables {
		key := v.Key
		if key == "" {
			key = v.Option
		}
		r.Variables = append(r.Variables, buildconfig.Variable{Key: key, Option: v.Option, Negate: v.Negate})
	}

	if len(d.Generate.Policy) > 0 {
		r.Policy = make(buildconfig.Policy, len(d.Generate.Policy))
		keys := make([]string, 0, len(d.Generate.Policy))
		for k := range d.Generate.Policy {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := d.Generate.Policy[k].(type) {
			case bool:
				r.Policy[k] = buildconfig.Bool(v)
			case string:
				r.Policy[k] = buildconfig.String(v)
			case int64:
				r.Policy[k] = buildconfig.String(fmt.Sprint(v))
			default:
				errs = append(errs, fmt.Errorf("policy %s: unsupported value %v (%T)", k, v, v))
			}
		}
	}

	for _, c := range d.Components {
		r.Components = append(r.Components, pkginfo.Decl{
			ID:            c.ID,
			Name:          c.Name,
			CMakeTarget:   c.CMakeTarget,
			PkgConfigName: c.PkgConfigName,
			Libs:          c.Libs,
			Requires:      c.Requires,
		})
	}
	return r, errs
}

func (o optionDoc) convert() (option.Decl, error) {
	decl := option.Decl{Name: o.Name, Values: o.Values, Description: o.Description}
	switch o.Type {
	case "", "bool":
		decl.Kind = option.Bool
		b, ok := o.Default.(bool)
		if !ok {
			return decl, fmt.Errorf("option %s: bool default required, got %v", o.Name, o.Default)
		}
		decl.Default = option.BoolValue(b)
	case "enum":
		decl.Kind = option.Enum
		v, err := option.FromAny(o.Default)
		if err != nil {
			return decl, fmt.Errorf("option %s: %w", o.Name, err)
		}
		decl.Default = option.EnumValue(v.String())
	default:
		return decl, fmt.Errorf("option %s: unknown type %q", o.Name, o.Type)
	}
	return decl, nil
}

// conditions converts a TOML condition table into option values.
func conditions(m map[string]any) (map[string]option.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]option.Value, len(m))
	for k, raw := range m {
		v, err := option.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
