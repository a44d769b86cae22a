package option

import (
	"encoding/json"
	"maps"
	"sort"
	"strings"
)

// Set is a frozen mapping from option name to resolved value.
// Sets are values: every operation that changes membership returns a new Set.
type Set struct {
	values  map[string]Value
	ignored []string
}

// NewSet builds a Set from a map. The map is copied.
func NewSet(values map[string]Value) Set {
	return Set{values: maps.Clone(values)}
}

// Get returns the value of name and whether it is present.
func (s Set) Get(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Has reports whether name survived pruning.
func (s Set) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Bool returns the boolean value of name, false when absent.
func (s Set) Bool(name string) bool {
	return s.values[name].Bool()
}

// Len returns the number of options in the set.
func (s Set) Len() int { return len(s.values) }

// Keys returns the option names, sorted.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the underlying values.
func (s Set) Map() map[string]Value { return maps.Clone(s.values) }

// Ignored lists caller overrides that were dropped because their option had
// already been removed for the target platform.
func (s Set) Ignored() []string { return append([]string(nil), s.ignored...) }

// Equal reports whether both sets hold the same names and values.
func (s Set) Equal(o Set) bool {
	return maps.EqualFunc(s.values, o.values, Value.Equal)
}

// without returns a copy of s with the named options removed.
func (s Set) without(names ...string) Set {
	out := Set{values: maps.Clone(s.values), ignored: s.ignored}
	for _, n := range names {
		delete(out.values, n)
	}
	return out
}

// String renders "name=value" pairs in name order.
func (s Set) String() string {
	parts := make([]string, 0, len(s.values))
	for _, k := range s.Keys() {
		parts = append(parts, k+"="+s.values[k].String())
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the set as an object.
func (s Set) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

// MarshalYAML implements yaml.Marshaler.
func (s Set) MarshalYAML() (any, error) {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v.Interface()
	}
	return out, nil
}
