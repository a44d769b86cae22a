// Package buildconfig translates a resolved option set and dependency graph
// into the configuration consumed by the external build tool.
//
// The translation is deliberately shallow. Each [Variable] maps one option
// to one cache variable, either passed through or (for booleans) negated,
// and enum values are passed as strings. A [Policy] adds fixed keys that are
// emitted identically on every run, such as WARNINGS_AS_ERRORS. Nothing
// else is derived: there is no conditional logic here beyond what option
// pruning already decided.
package buildconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/option"
)

// ValueKind is the type of a configuration value.
type ValueKind string

const (
	KindBool   ValueKind = "BOOL"
	KindString ValueKind = "STRING"
	KindPath   ValueKind = "PATH"
)

// Value is a typed configuration value.
type Value struct {
	Kind ValueKind `json:"type"`
	Raw  string    `json:"value"`
}

// Bool returns a boolean value rendered as ON/OFF.
func Bool(b bool) Value {
	if b {
		return Value{Kind: KindBool, Raw: "ON"}
	}
	return Value{Kind: KindBool, Raw: "OFF"}
}

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Raw: s} }

// Path returns a filesystem path value.
func Path(p string) Value { return Value{Kind: KindPath, Raw: p} }

// Variable maps one option to one build configuration key.
type Variable struct {
	Key    string
	Option string
	Negate bool // bool options only
}

// Mapping is the ordered list of option-derived variables of a recipe.
type Mapping []Variable

// Policy is the set of fixed keys emitted on every run.
type Policy map[string]Value

// Config is the build configuration: key to typed value.
type Config map[string]Value

// Keys returns the configuration keys, sorted.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders "-DKEY:TYPE=VALUE" arguments in key order.
func (c Config) String() string {
	parts := make([]string, 0, len(c))
	for _, k := range c.Keys() {
		v := c[k]
		parts = append(parts, fmt.Sprintf("-D%s:%s=%s", k, v.Kind, v.Raw))
	}
	return strings.Join(parts, " ")
}

// Validate checks a mapping and policy against an option schema before any
// run: every mapped option must be declared, negation applies only to
// booleans, keys are unique, and policy keys never collide with mapped keys.
func Validate(m Mapping, p Policy, schema option.Schema) error {
	var errs []error
	seen := make(map[string]bool, len(m))
	for _, v := range m {
		if v.Key == "" {
			errs = append(errs, fmt.Errorf("variable for option %s has empty key", v.Option))
			continue
		}
		if seen[v.Key] {
			errs = append(errs, fmt.Errorf("variable %s mapped twice", v.Key))
		}
		seen[v.Key] = true
		d, ok := schema.Decl(v.Option)
		if !ok {
			errs = append(errs, fmt.Errorf("variable %s maps undeclared option %q", v.Key, v.Option))
			continue
		}
		if v.Negate && d.Kind != option.Bool {
			errs = append(errs, fmt.Errorf("variable %s negates non-boolean option %s", v.Key, v.Option))
		}
	}
	for k := range p {
		if seen[k] {
			errs = append(errs, fmt.Errorf("policy key %s collides with an option variable", k))
		}
	}
	return errors.Join(errors.ErrCodeConfiguration, errs)
}

// Emit builds the configuration for a resolved option set. Options absent
// from the set (pruned) emit nothing. Policy keys are always emitted.
func Emit(set option.Set, m Mapping, p Policy) (Config, error) {
	cfg := make(Config, len(m)+len(p))
	for k, v := range p {
		cfg[k] = v
	}
	for _, v := range m {
		if _, fixed := p[v.Key]; fixed {
			return nil, errors.Configuration("policy key %s collides with option %s", v.Key, v.Option)
		}
		val, ok := set.Get(v.Option)
		if !ok {
			continue
		}
		switch val.Kind() {
		case option.Bool:
			b := val.Bool()
			if v.Negate {
				b = !b
			}
			cfg[v.Key] = Bool(b)
		case option.Enum:
			if v.Negate {
				return nil, errors.Configuration("cannot negate enum option %s", v.Option)
			}
			cfg[v.Key] = String(val.String())
		default:
			return nil, errors.Configuration("option %s has no value", v.Option)
		}
	}
	return cfg, nil
}
