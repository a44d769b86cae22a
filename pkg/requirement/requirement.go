// Package requirement computes the dependency list of a recipe from its
// resolved options.
//
// Requirements are declared as data. Each [Decl] names a package reference
// and the option values (and recipe profiles) under which it applies;
// [Declare] filters the declarations against a frozen option set. Options
// that were pruned never satisfy a condition, so a requirement guarded by a
// platform-inapplicable option silently drops out.
package requirement

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/option"
)

// Flag qualifies how a requirement is consumed.
type Flag string

const (
	// FlagBuild marks a tool needed only while building (cmake, ninja, pkgconf).
	FlagBuild Flag = "build"
	// FlagVisible propagates the requirement to consumers of this package.
	FlagVisible Flag = "visible"
	// FlagOverride forces this version over any transitive one.
	FlagOverride Flag = "override"
)

// ParseFlag parses a flag name.
func ParseFlag(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "build":
		return FlagBuild, nil
	case "visible":
		return FlagVisible, nil
	case "override":
		return FlagOverride, nil
	}
	return "", fmt.Errorf("invalid requirement flag: %s", s)
}

// Requirement is one declared dependency.
type Requirement struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Flags   []Flag `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// Ref returns the "name/version" reference.
func (r Requirement) Ref() string { return r.Name + "/" + r.Version }

// Has reports whether the requirement carries flag f.
func (r Requirement) Has(f Flag) bool { return slices.Contains(r.Flags, f) }

func (r Requirement) String() string { return r.Ref() }

// ParseRef parses a "name/version" reference.
func ParseRef(ref string) (Requirement, error) {
	name, version, ok := strings.Cut(strings.TrimSpace(ref), "/")
	if !ok {
		return Requirement{}, errors.Configuration("invalid requirement %q: want name/version", ref)
	}
	if err := errors.ValidatePackageName(name); err != nil {
		return Requirement{}, errors.Wrap(errors.ErrCodeConfiguration, err, "requirement %q", ref)
	}
	if err := errors.ValidateVersion(version); err != nil {
		return Requirement{}, errors.Wrap(errors.ErrCodeConfiguration, err, "requirement %q", ref)
	}
	return Requirement{Name: name, Version: version}, nil
}

// Decl is a requirement declaration guarded by option conditions.
//
// A declaration applies when every When entry equals the resolved option
// value, no Unless entry does, and the active profile is listed in Profiles
// (an empty Profiles list applies to every profile).
type Decl struct {
	Ref      string
	Flags    []Flag
	When     map[string]option.Value
	Unless   map[string]option.Value
	Profiles []string
}

func (d Decl) applies(set option.Set, profile string) bool {
	if len(d.Profiles) > 0 && !slices.Contains(d.Profiles, profile) {
		return false
	}
	for name, want := range d.When {
		got, ok := set.Get(name)
		if !ok || !got.Equal(want) {
			return false
		}
	}
	for name, reject := range d.Unless {
		if got, ok := set.Get(name); ok && got.Equal(reject) {
			return false
		}
	}
	return true
}

// Requirements is an ordered list of requirements with unique names.
type Requirements []Requirement

// Names returns the requirement names in declaration order.
func (rs Requirements) Names() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

// Get returns the requirement named name.
func (rs Requirements) Get(name string) (Requirement, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r, true
		}
	}
	return Requirement{}, false
}

// Declare evaluates decls against set for the given profile and returns the
// applicable requirements in declaration order. Two applicable declarations
// for the same package name are a ConfigurationError. Declare is pure.
func Declare(decls []Decl, set option.Set, profile string) (Requirements, error) {
	out := make(Requirements, 0, len(decls))
	seen := make(map[string]string, len(decls))
	for _, d := range decls {
		if !d.applies(set, profile) {
			continue
		}
		r, err := ParseRef(d.Ref)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[r.Name]; dup {
			return nil, errors.Configuration("duplicate requirement %s: %s and %s", r.Name, prev, r.Ref())
		}
		seen[r.Name] = r.Ref()
		r.Flags = slices.Clone(d.Flags)
		out = append(out, r)
	}
	return out, nil
}

// Validate checks declarations against the option schema and profile list
// before anything runs: references must parse, conditions must name declared
// options with admissible values, and listed profiles must exist.
func Validate(decls []Decl, schema option.Schema, profiles []string) error {
	var errs []error
	for _, d := range decls {
		if _, err := ParseRef(d.Ref); err != nil {
			errs = append(errs, err)
		}
		for _, conds := range []map[string]option.Value{d.When, d.Unless} {
			for name, v := range conds {
				od, ok := schema.Decl(name)
				if !ok {
					errs = append(errs, fmt.Errorf("requirement %s: condition on undeclared option %q", d.Ref, name))
					continue
				}
				if !od.Contains(v) {
					errs = append(errs, fmt.Errorf("requirement %s: %s=%s outside domain %v", d.Ref, name, v, od.Domain()))
				}
			}
		}
		for _, p := range d.Profiles {
			if !slices.Contains(profiles, p) {
				errs = append(errs, fmt.Errorf("requirement %s: unknown profile %q", d.Ref, p))
			}
		}
	}
	return errors.Join(errors.ErrCodeConfiguration, errs)
}
