package option

import (
	"fmt"
	"slices"
	"sort"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/platform"
)

// Decl declares one option: its name, domain and default.
type Decl struct {
	Name        string
	Kind        Kind
	Values      []string // enum domain; ignored for Bool
	Default     Value
	Description string
}

// Contains reports whether v lies in the option's domain.
func (d Decl) Contains(v Value) bool {
	if v.Kind() != d.Kind {
		return false
	}
	if d.Kind == Bool {
		return true
	}
	return slices.Contains(d.Values, v.String())
}

// Parse converts a raw override string into a Value of the option's kind.
func (d Decl) Parse(raw string) (Value, error) {
	var v Value
	switch d.Kind {
	case Bool:
		b, err := ParseBool(raw)
		if err != nil {
			return Value{}, errors.Configuration("option %s: %v", d.Name, err)
		}
		v = BoolValue(b)
	case Enum:
		v = EnumValue(raw)
	default:
		return Value{}, errors.Configuration("option %s: unknown kind %q", d.Name, d.Kind)
	}
	if !d.Contains(v) {
		return Value{}, errors.Configuration("option %s: value %q not in %v", d.Name, raw, d.Domain())
	}
	return v, nil
}

// Domain lists the admissible values in display form.
func (d Decl) Domain() []string {
	if d.Kind == Bool {
		return []string{"True", "False"}
	}
	return slices.Clone(d.Values)
}

// Rule removes Target from the option set when it applies.
//
// A rule with only Settings conditions is a platform rule and is evaluated
// while options are first resolved against the platform. A rule with When
// conditions is a value rule and is evaluated after caller overrides, against
// the overridden values. Within each group every listed condition must hold;
// a settings condition holds when the platform setting equals any of the
// listed values.
type Rule struct {
	Target   string
	Settings map[string][]string
	When     map[string]Value
	Reason   string
}

// IsValueRule reports whether the rule depends on option values.
func (r Rule) IsValueRule() bool { return len(r.When) > 0 }

func (r Rule) matchesPlatform(p platform.Platform) bool {
	for name, accepted := range r.Settings {
		got, ok := p.Setting(name)
		if !ok || !slices.Contains(accepted, got) {
			return false
		}
	}
	return true
}

// matchesValues reports whether every When condition equals the value in s.
// Absent options never match.
func (r Rule) matchesValues(s map[string]Value) bool {
	for name, want := range r.When {
		got, ok := s[name]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

func (r Rule) String() string {
	if r.Reason != "" {
		return r.Reason
	}
	return fmt.Sprintf("remove %s when %v %v", r.Target, r.Settings, r.When)
}

// Schema is the immutable option schema of a recipe.
type Schema struct {
	Options []Decl
	Rules   []Rule
}

// Decl returns the declaration for name.
func (s Schema) Decl(name string) (Decl, bool) {
	for _, d := range s.Options {
		if d.Name == name {
			return d, true
		}
	}
	return Decl{}, false
}

// Names returns the declared option names, sorted.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s.Options))
	for _, d := range s.Options {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the schema for internal consistency: unique names, defaults
// inside their domains, and rules that reference only declared options and
// known platform settings with admissible values. All problems are reported
// together as one ConfigurationError.
func (s Schema) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(s.Options))
	for _, d := range s.Options {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Errorf("option with empty name"))
			continue
		case seen[d.Name]:
			errs = append(errs, fmt.Errorf("option %s declared twice", d.Name))
			continue
		}
		seen[d.Name] = true
		if d.Kind != Bool && d.Kind != Enum {
			errs = append(errs, fmt.Errorf("option %s: unknown kind %q", d.Name, d.Kind))
			continue
		}
		if d.Kind == Enum && len(d.Values) == 0 {
			errs = append(errs, fmt.Errorf("option %s: enum without values", d.Name))
		}
		if !d.Contains(d.Default) {
			errs = append(errs, fmt.Errorf("option %s: default %s not in domain %v", d.Name, d.Default, d.Domain()))
		}
	}

	for i, r := range s.Rules {
		if !seen[r.Target] {
			errs = append(errs, fmt.Errorf("rule %d references undeclared option %q", i, r.Target))
		}
		if len(r.Settings) == 0 && len(r.When) == 0 {
			errs = append(errs, fmt.Errorf("rule %d for %s has no conditions", i, r.Target))
		}
		for name := range r.Settings {
			if _, ok := (platform.Platform{}).Setting(name); !ok {
				errs = append(errs, fmt.Errorf("rule %d references unknown setting %q", i, name))
			}
		}
		for name, v := range r.When {
			d, ok := s.Decl(name)
			if !ok {
				errs = append(errs, fmt.Errorf("rule %d condition references undeclared option %q", i, name))
				continue
			}
			if !d.Contains(v) {
				errs = append(errs, fmt.Errorf("rule %d condition %s=%s outside domain %v", i, name, v, d.Domain()))
			}
		}
	}
	return errors.Join(errors.ErrCodeConfiguration, errs)
}
