package example

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/label"
	"github.com/wippyai/featurize/wire"
)

// Diff compares two example lists and describes the first difference found.
// Labels are compared with the comparator selected for the expected label; features
// compare by namespace, name and value, in order.
func Diff(expected, actual []Example) error {
	if len(expected) != len(actual) {
		return errors.InvalidData(errors.PhaseSerialize, nil,
			fmt.Sprintf("expected %d examples, got %d", len(expected), len(actual)))
	}
	for i := range expected {
		if err := diffExample(&expected[i], &actual[i]); err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
	}
	return nil
}

func diffExample(e, a *Example) error {
	if e.Shared != a.Shared {
		return invalid(nil, "shared flag: expected %t, got %t", e.Shared, a.Shared)
	}
	if err := label.Compare(e.Label, a.Label); err != nil {
		return err
	}
	return diffFeatures(nil, e.Features, a.Features)
}

func diffFeatures(path []string, expected, actual []Feature) error {
	if len(expected) != len(actual) {
		return invalid(path, "expected %d features, got %d", len(expected), len(actual))
	}
	for i := range expected {
		e, a := expected[i], actual[i]
		p := append(slices.Clip(path), e.Name)
		if e.Name != a.Name || e.Namespace != a.Namespace {
			return invalid(p, "expected feature %s|%s, got %s|%s", e.Namespace, e.Name, a.Namespace, a.Name)
		}
		if err := diffValue(p, e.Value, a.Value); err != nil {
			return err
		}
	}
	return nil
}

func diffValue(path []string, e, a Value) error {
	if e.Kind != a.Kind {
		return invalid(path, "expected %s value, got %s", e.Kind, a.Kind)
	}
	switch e.Kind {
	case wire.KindNumber:
		if e.Number != a.Number {
			return invalid(path, "expected %s, got %s", formatNumber(e.Number), formatNumber(a.Number))
		}
	case wire.KindString:
		if e.Str != a.Str {
			return invalid(path, "expected %q, got %q", e.Str, a.Str)
		}
	case wire.KindBool:
		if e.Bool != a.Bool {
			return invalid(path, "expected %t, got %t", e.Bool, a.Bool)
		}
	case wire.KindTokens:
		if !slices.Equal(e.Tokens, a.Tokens) {
			return invalid(path, "expected tokens %v, got %v", e.Tokens, a.Tokens)
		}
	case wire.KindVector:
		if !slices.Equal(e.Vector, a.Vector) {
			return invalid(path, "expected vector %v, got %v", e.Vector, a.Vector)
		}
	case wire.KindDict:
		if !maps.Equal(e.Dict, a.Dict) {
			return invalid(path, "expected dict %v, got %v", e.Dict, a.Dict)
		}
	case wire.KindGroup:
		return diffFeatures(path, e.Group, a.Group)
	}
	return nil
}

func invalid(path []string, format string, args ...any) error {
	return errors.InvalidData(errors.PhaseSerialize, path, fmt.Sprintf(format, args...))
}

// DiffText compares the text lines of two example lists.
func DiffText(expected, actual []Example) error {
	if len(expected) != len(actual) {
		return invalid(nil, "expected %d lines, got %d", len(expected), len(actual))
	}
	for i := range expected {
		if expected[i].Text != actual[i].Text {
			return invalid([]string{strconv.Itoa(i)}, "expected line %q, got %q", expected[i].Text, actual[i].Text)
		}
	}
	return nil
}
