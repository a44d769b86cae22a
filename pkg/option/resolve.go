package option

import (
	"sort"
	"strings"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/platform"
)

// ConfigOptions starts from the declared defaults and removes every option
// whose platform rule matches p. The schema is not modified.
func ConfigOptions(schema Schema, p platform.Platform) (Set, error) {
	if err := schema.Validate(); err != nil {
		return Set{}, err
	}
	values := make(map[string]Value, len(schema.Options))
	for _, d := range schema.Options {
		values[d.Name] = d.Default
	}
	set := Set{values: values}

	var drop []string
	for _, r := range schema.Rules {
		if r.IsValueRule() {
			continue
		}
		if r.matchesPlatform(p) {
			drop = append(drop, r.Target)
		}
	}
	return set.without(drop...), nil
}

// Configure applies caller overrides to a platform-pruned set and then removes
// every option whose value rule matches. Value rules are evaluated against the
// overridden values before any of them removes anything, so rule order does
// not affect the result.
//
// An override naming an undeclared option, or carrying a value outside the
// option's domain, is a ConfigurationError. An override naming an option the
// platform already removed is dropped and reported through Set.Ignored.
func Configure(schema Schema, set Set, p platform.Platform, overrides map[string]string) (Set, error) {
	values := set.Map()
	var ignored []string

	names := make([]string, 0, len(overrides))
	for n := range overrides {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		d, ok := schema.Decl(name)
		if !ok {
			return Set{}, errors.Configuration("unknown option %q (declared: %s)", name, strings.Join(schema.Names(), ", "))
		}
		v, err := d.Parse(overrides[name])
		if err != nil {
			return Set{}, err
		}
		if _, present := values[name]; !present {
			ignored = append(ignored, name)
			continue
		}
		values[name] = v
	}

	var drop []string
	for _, r := range schema.Rules {
		if !r.IsValueRule() {
			continue
		}
		if r.matchesPlatform(p) && r.matchesValues(values) {
			drop = append(drop, r.Target)
		}
	}
	out := Set{values: values, ignored: ignored}
	return out.without(drop...), nil
}

// Resolve runs ConfigOptions followed by Configure. For equal inputs it
// always returns an equal Set.
func Resolve(schema Schema, p platform.Platform, overrides map[string]string) (Set, error) {
	set, err := ConfigOptions(schema, p)
	if err != nil {
		return Set{}, err
	}
	return Configure(schema, set, p, overrides)
}

// ParseOverrides parses "name=value" assignments as given on the command line.
func ParseOverrides(assignments []string) (map[string]string, error) {
	out := make(map[string]string, len(assignments))
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "invalid option assignment %q: want name=value", a)
		}
		if _, dup := out[name]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput, "option %s assigned twice", name)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}
