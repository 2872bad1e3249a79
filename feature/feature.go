// Package feature describes the features of an example type: what they are called, how
// their values are read from an instance, and when they apply.
//
// A Set is computed once per type by a Discoverer and treated as immutable afterwards.
// Its order is the order features are emitted in.
package feature

import (
	"cmp"
	"iter"
	"reflect"
	"slices"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/example"
)

// MultiProperty is the reserved name of the collection feature holding the
// action-dependent records of a multi-line example.
const MultiProperty = "_multi"

// Extractor reads a feature value from its owner.
type Extractor func(owner reflect.Value) (reflect.Value, error)

// Predicate decides whether a feature applies to its owner.
type Predicate func(owner reflect.Value) bool

// Descriptor is the metadata of one feature.
//
// Owner values passed to Extract and Valid are struct values, never pointers.
// When Index is set the feature is the field at that index path and Extract reads
// exactly that field.
type Descriptor struct {
	Type      reflect.Type
	Extract   Extractor
	Name      string
	Namespace string
	Index     []int
	Valid     []Predicate
	Order     int
}

// IsField reports whether d reads a struct field directly.
func (d *Descriptor) IsField() bool {
	return len(d.Index) > 0
}

// Applies reports whether all of d's predicates hold for owner.
// Evaluation stops at the first failing predicate.
func (d *Descriptor) Applies(owner reflect.Value) bool {
	for _, p := range d.Valid {
		if !p(owner) {
			return false
		}
	}
	return true
}

// Field returns an extractor reading the field at index.
func Field(index []int) Extractor {
	if len(index) == 1 {
		i := index[0]
		return func(owner reflect.Value) (reflect.Value, error) {
			return owner.Field(i), nil
		}
	}
	return func(owner reflect.Value) (reflect.Value, error) {
		return owner.FieldByIndexErr(index)
	}
}

// Set is an ordered collection of descriptors for one type.
type Set struct {
	typ    reflect.Type
	byName map[string]int
	items  []*Descriptor
}

// NewSet validates descriptors and orders them by Order, keeping declaration order for
// equal values. Names must be unique.
func NewSet(t reflect.Type, descriptors []*Descriptor) (*Set, error) {
	s := &Set{
		typ:    t,
		byName: make(map[string]int, len(descriptors)),
		items:  make([]*Descriptor, 0, len(descriptors)),
	}
	owner := "<nil>"
	if t != nil {
		owner = t.String()
	}

	for _, d := range descriptors {
		if d == nil {
			return nil, errors.InvalidInput(errors.PhaseDiscover, "nil feature descriptor")
		}
		if d.Name == "" {
			return nil, errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
				GoType(owner).
				Detail("feature without a name").
				Build()
		}
		if _, dup := s.byName[d.Name]; dup {
			return nil, errors.DuplicateFeature(errors.PhaseDiscover, owner, d.Name)
		}
		c := *d
		if c.Extract == nil {
			if !c.IsField() {
				return nil, errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
					Path(c.Name).
					GoType(owner).
					Detail("feature has neither an extractor nor a field index").
					Build()
			}
			c.Extract = Field(c.Index)
		}
		if c.Type == nil {
			return nil, errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
				Path(c.Name).
				GoType(owner).
				Detail("feature has no declared type").
				Build()
		}
		s.byName[c.Name] = len(s.items)
		s.items = append(s.items, &c)
	}

	slices.SortStableFunc(s.items, func(a, b *Descriptor) int {
		return cmp.Compare(a.Order, b.Order)
	})
	for i, d := range s.items {
		s.byName[d.Name] = i
	}
	return s, nil
}

// Type returns the type the set describes.
func (s *Set) Type() reflect.Type { return s.typ }

// Len returns the number of descriptors.
func (s *Set) Len() int { return len(s.items) }

// At returns the i-th descriptor in emission order.
func (s *Set) At(i int) *Descriptor { return s.items[i] }

// Find looks a descriptor up by name.
func (s *Set) Find(name string) (*Descriptor, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.items[i], true
}

// All iterates the descriptors in emission order.
func (s *Set) All() iter.Seq[*Descriptor] {
	return func(yield func(*Descriptor) bool) {
		for _, d := range s.items {
			if !yield(d) {
				return
			}
		}
	}
}

// Without returns a set holding every descriptor except the one named like d.
func (s *Set) Without(d *Descriptor) *Set {
	out := &Set{
		typ:    s.typ,
		byName: make(map[string]int, len(s.items)),
		items:  make([]*Descriptor, 0, len(s.items)),
	}
	for _, item := range s.items {
		if item.Name == d.Name {
			continue
		}
		out.byName[item.Name] = len(out.items)
		out.items = append(out.items, item)
	}
	return out
}

// Discoverer produces the descriptor set of a struct type.
type Discoverer interface {
	Discover(t reflect.Type) (*Set, error)
}

// DiscovererFunc adapts a function to the Discoverer interface.
type DiscovererFunc func(t reflect.Type) (*Set, error)

func (f DiscovererFunc) Discover(t reflect.Type) (*Set, error) { return f(t) }

// Writer emits an extracted value of d into the open example of ctx.
type Writer func(ctx *example.Context, d *Descriptor, v reflect.Value) error

// Featurizer lets callers take over how individual features are written.
//
// It is consulted once per descriptor while a serializer is compiled. Claiming a
// descriptor makes its declared type legal even if it has no wire form.
type Featurizer interface {
	Featurize(d *Descriptor) (w Writer, ok bool, err error)
}
