// Package example holds the output side of serialization: the Context examples are
// written into, the examples themselves, and their engine text form.
package example

import (
	"github.com/wippyai/featurize/label"
	"github.com/wippyai/featurize/wire"
)

// Value is a feature value of one wire kind. Only the field matching Kind is set.
type Value struct {
	Dict   map[string]float64
	Str    string
	Tokens []string
	Vector []float64
	Group  []Feature
	Number float64
	Kind   wire.Kind
	Bool   bool
}

// Number returns a numeric value.
func Number(f float64) Value { return Value{Kind: wire.KindNumber, Number: f} }

// String returns a string value.
func String(s string) Value { return Value{Kind: wire.KindString, Str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: wire.KindBool, Bool: b} }

// Tokens returns a token list value.
func Tokens(t []string) Value { return Value{Kind: wire.KindTokens, Tokens: t} }

// Vector returns a dense vector value.
func Vector(v []float64) Value { return Value{Kind: wire.KindVector, Vector: v} }

// Dict returns a sparse dictionary value.
func Dict(d map[string]float64) Value { return Value{Kind: wire.KindDict, Dict: d} }

// Group returns a nested feature group.
func Group(fs []Feature) Value { return Value{Kind: wire.KindGroup, Group: fs} }

// Feature is one named value in an example.
type Feature struct {
	Namespace string
	Name      string
	Value     Value
}

// Example is one line of engine input.
type Example struct {
	Label    label.Label
	Text     string
	Features []Feature
	Shared   bool
}

// Feature returns the top-level feature called name.
func (e *Example) Feature(name string) (Feature, bool) {
	return find(e.Features, name)
}

// Lookup follows a path of feature names through nested groups.
func (e *Example) Lookup(path ...string) (Feature, bool) {
	fs := e.Features
	var f Feature
	for i, name := range path {
		var ok bool
		if f, ok = find(fs, name); !ok {
			return Feature{}, false
		}
		if i < len(path)-1 {
			if f.Value.Kind != wire.KindGroup {
				return Feature{}, false
			}
			fs = f.Value.Group
		}
	}
	return f, len(path) > 0
}

// Names returns the top-level feature names in emission order.
func (e *Example) Names() []string {
	names := make([]string, len(e.Features))
	for i, f := range e.Features {
		names[i] = f.Name
	}
	return names
}

func find(fs []Feature, name string) (Feature, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}
