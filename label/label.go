// Package label defines the labels attached to produced examples and selects the
// comparator used to check two labels of the same type for equivalence.
package label

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/wippyai/featurize/errors"
)

// Label is attached to an example and rendered at the head of its text line.
type Label interface {
	String() string
}

// Simple is a regression or binary classification label.
// A zero Weight is written as the engine default of 1.
type Simple struct {
	Label   float32
	Weight  float32
	Initial float32
}

func (l Simple) String() string {
	var b strings.Builder
	b.WriteString(formatFloat(l.Label))
	if l.Initial != 0 || (l.Weight != 0 && l.Weight != 1) {
		b.WriteByte(' ')
		b.WriteString(formatFloat(l.weight()))
	}
	if l.Initial != 0 {
		b.WriteByte(' ')
		b.WriteString(formatFloat(l.Initial))
	}
	return b.String()
}

func (l Simple) weight() float32 {
	if l.Weight == 0 {
		return 1
	}
	return l.Weight
}

// ContextualBandit labels an action example with the cost observed for the action and
// the probability it was chosen with.
type ContextualBandit struct {
	Action      uint32
	Cost        float32
	Probability float32
}

func (l ContextualBandit) String() string {
	return strconv.FormatUint(uint64(l.Action), 10) + ":" + formatFloat(l.Cost) + ":" + formatFloat(l.Probability)
}

type shared struct{}

func (shared) String() string { return "shared" }

// Shared marks the context example of a multi-line example.
var Shared Label = shared{}

// IsShared reports whether l is the shared marker.
func IsShared(l Label) bool {
	_, ok := l.(shared)
	return ok
}

// Comparator checks two labels of one type and returns a description of the first
// difference found.
type Comparator func(expected, actual Label) error

// ComparatorFor selects the comparator for l. Nil and shared labels carry no value to
// compare and yield a nil comparator.
func ComparatorFor(l Label) (Comparator, error) {
	switch l.(type) {
	case nil, shared:
		return nil, nil
	case Simple, *Simple:
		return compareSimple, nil
	case ContextualBandit, *ContextualBandit:
		return compareContextualBandit, nil
	}
	return nil, errors.UnsupportedLabel(reflect.TypeOf(l).String())
}

// Compare selects the comparator for expected and applies it.
func Compare(expected, actual Label) error {
	cmp, err := ComparatorFor(expected)
	if err != nil {
		return err
	}
	if cmp == nil {
		if actual != nil && !IsShared(actual) {
			return mismatch("label", "none", actual.String())
		}
		return nil
	}
	return cmp(expected, actual)
}

func compareSimple(expected, actual Label) error {
	e, ok := asSimple(expected)
	if !ok {
		return mismatchType(expected, actual)
	}
	a, ok := asSimple(actual)
	if !ok {
		return mismatchType(expected, actual)
	}
	if !nearlyEqual(e.Label, a.Label) {
		return mismatch("label", formatFloat(e.Label), formatFloat(a.Label))
	}
	if !nearlyEqual(e.weight(), a.weight()) {
		return mismatch("weight", formatFloat(e.weight()), formatFloat(a.weight()))
	}
	if !nearlyEqual(e.Initial, a.Initial) {
		return mismatch("initial", formatFloat(e.Initial), formatFloat(a.Initial))
	}
	return nil
}

func compareContextualBandit(expected, actual Label) error {
	e, ok := asContextualBandit(expected)
	if !ok {
		return mismatchType(expected, actual)
	}
	a, ok := asContextualBandit(actual)
	if !ok {
		return mismatchType(expected, actual)
	}
	if e.Action != a.Action {
		return mismatch("action", strconv.FormatUint(uint64(e.Action), 10), strconv.FormatUint(uint64(a.Action), 10))
	}
	if !nearlyEqual(e.Cost, a.Cost) {
		return mismatch("cost", formatFloat(e.Cost), formatFloat(a.Cost))
	}
	if !nearlyEqual(e.Probability, a.Probability) {
		return mismatch("probability", formatFloat(e.Probability), formatFloat(a.Probability))
	}
	return nil
}

func asSimple(l Label) (Simple, bool) {
	switch v := l.(type) {
	case Simple:
		return v, true
	case *Simple:
		if v != nil {
			return *v, true
		}
	}
	return Simple{}, false
}

func asContextualBandit(l Label) (ContextualBandit, bool) {
	switch v := l.(type) {
	case ContextualBandit:
		return v, true
	case *ContextualBandit:
		if v != nil {
			return *v, true
		}
	}
	return ContextualBandit{}, false
}

func mismatch(field, expected, actual string) error {
	return errors.InvalidData(errors.PhaseLabel, []string{field}, fmt.Sprintf("expected %s, got %s", expected, actual))
}

func mismatchType(expected, actual Label) error {
	return errors.New(errors.PhaseLabel, errors.KindTypeMismatch).
		GoType(fmt.Sprintf("%T", actual)).
		Detail("expected a %T label", expected).
		Build()
}

const epsilon = 1e-5

func nearlyEqual(a, b float32) bool {
	if a == b {
		return true
	}
	diff := math.Abs(float64(a) - float64(b))
	scale := math.Max(math.Abs(float64(a)), math.Abs(float64(b)))
	return diff <= epsilon || diff <= epsilon*scale
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
