package option

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the domain type of an option.
type Kind string

const (
	// Bool options take the values true and false.
	Bool Kind = "bool"
	// Enum options take one of an explicit list of strings.
	Enum Kind = "enum"
)

// Value is a resolved option value. The zero Value is invalid.
type Value struct {
	kind Kind
	b    bool
	s    string
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// EnumValue returns an enumerated Value.
func EnumValue(s string) Value { return Value{kind: Enum, s: s} }

// Kind returns the value's domain type.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v was constructed by BoolValue or EnumValue.
func (v Value) IsValid() bool { return v.kind != "" }

// Bool returns the boolean payload. Enum values report false.
func (v Value) Bool() bool { return v.kind == Bool && v.b }

// String renders booleans as "True"/"False" and enums verbatim.
func (v Value) String() string {
	switch v.kind {
	case Bool:
		if v.b {
			return "True"
		}
		return "False"
	case Enum:
		return v.s
	}
	return "<invalid>"
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.b == o.b && v.s == o.s
}

// Interface returns the payload as a bool or a string.
func (v Value) Interface() any {
	if v.kind == Bool {
		return v.b
	}
	return v.s
}

// MarshalJSON encodes booleans as JSON booleans and enums as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}

// ParseBool accepts the spellings recipe authors and CLI users write for booleans.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "on", "yes":
		return true, nil
	case "false", "0", "off", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

// FromAny converts a decoded TOML/JSON scalar into a Value.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case bool:
		return BoolValue(x), nil
	case string:
		return EnumValue(x), nil
	case int64:
		return EnumValue(fmt.Sprint(x)), nil
	case int:
		return EnumValue(fmt.Sprint(x)), nil
	case float64:
		return EnumValue(fmt.Sprint(x)), nil
	}
	return Value{}, fmt.Errorf("unsupported option value %v (%T)", v, v)
}
