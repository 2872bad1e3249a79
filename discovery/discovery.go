// Package discovery derives feature descriptor sets from struct tags.
//
// In tagged mode only fields carrying a `vw` tag are features:
//
//	type Item struct {
//		Name    string            `vw:"name,ns=item"`
//		Weight  float64           `vw:"w,order=1"`
//		Tags    []string          `vw:"tags,omitempty"`
//		Actions []Action          `vw:"_multi"`
//		Ignored int               `vw:"-"`
//	}
//
// In JSON mode every exported field is a feature named after its `json` tag, so types
// that are already decoded from JSON need no extra annotations.
//
// Untagged embedded structs are flattened into their parent. Pointer, slice, map,
// interface and func fields only apply when non-nil; omitempty fields only apply when
// non-zero.
package discovery

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/wire"
)

// Mode selects which struct tags name features.
type Mode string

const (
	ModeTagged Mode = "tagged"
	ModeJSON   Mode = "json"
)

// Discoverer builds descriptor sets from struct tags and caches them per type.
type Discoverer struct {
	mode  Mode
	cache sync.Map // reflect.Type -> *feature.Set
}

// New creates a discoverer. An unknown mode falls back to ModeTagged.
func New(mode Mode) *Discoverer {
	if mode != ModeJSON {
		mode = ModeTagged
	}
	return &Discoverer{mode: mode}
}

// Mode returns the discoverer's mode.
func (d *Discoverer) Mode() Mode {
	return d.mode
}

// Discover returns the descriptor set of t, which must be a struct or a pointer to one.
func (d *Discoverer) Discover(t reflect.Type) (*feature.Set, error) {
	if t == nil {
		return nil, errors.InvalidInput(errors.PhaseDiscover, "nil reflect.Type")
	}
	base, err := wire.Deref(t)
	if err != nil {
		return nil, err
	}
	if base.Kind() != reflect.Struct {
		return nil, errors.New(errors.PhaseDiscover, errors.KindTypeMismatch).
			GoType(t.String()).
			Detail("features can only be discovered on structs").
			Build()
	}

	if cached, ok := d.cache.Load(base); ok {
		return cached.(*feature.Set), nil
	}

	var descriptors []*feature.Descriptor
	if err := d.scan(base, nil, &descriptors); err != nil {
		return nil, err
	}
	set, err := feature.NewSet(base, descriptors)
	if err != nil {
		return nil, err
	}

	Logger().Debug("discovered features",
		zap.Stringer("type", base),
		zap.String("mode", string(d.mode)),
		zap.Int("features", set.Len()))

	actual, _ := d.cache.LoadOrStore(base, set)
	return actual.(*feature.Set), nil
}

func (d *Discoverer) scan(t reflect.Type, prefix []int, out *[]*feature.Descriptor) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		tag, tagged := f.Tag.Lookup(d.tagKey())

		if f.Anonymous && !tagged && f.Type.Kind() == reflect.Struct {
			if err := d.scan(f.Type, index, out); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() || tag == "-" {
			continue
		}
		if d.mode == ModeTagged && !tagged {
			continue
		}

		opts, err := parseTag(f, tag)
		if err != nil {
			return err
		}
		*out = append(*out, &feature.Descriptor{
			Name:      opts.name,
			Namespace: opts.namespace,
			Type:      f.Type,
			Index:     index,
			Valid:     predicates(index, f.Type, opts.omitempty),
			Order:     opts.order,
		})
	}
	return nil
}

func (d *Discoverer) tagKey() string {
	if d.mode == ModeJSON {
		return "json"
	}
	return "vw"
}

type tagOptions struct {
	name      string
	namespace string
	order     int
	omitempty bool
}

func parseTag(f reflect.StructField, tag string) (tagOptions, error) {
	parts := strings.Split(tag, ",")
	opts := tagOptions{name: parts[0]}
	if opts.name == "" {
		opts.name = f.Name
	}

	for _, p := range parts[1:] {
		switch {
		case p == "omitempty":
			opts.omitempty = true
		case strings.HasPrefix(p, "ns="):
			opts.namespace = strings.TrimPrefix(p, "ns=")
		case strings.HasPrefix(p, "order="):
			n, err := strconv.Atoi(strings.TrimPrefix(p, "order="))
			if err != nil {
				return tagOptions{}, errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
					Path(f.Name).
					Cause(err).
					Detail("invalid order %q", p).
					Build()
			}
			opts.order = n
		}
	}
	return opts, nil
}

func predicates(index []int, t reflect.Type, omitempty bool) []feature.Predicate {
	field := func(owner reflect.Value) (reflect.Value, bool) {
		v, err := owner.FieldByIndexErr(index)
		return v, err == nil
	}

	var ps []feature.Predicate
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func:
		ps = append(ps, func(owner reflect.Value) bool {
			v, ok := field(owner)
			return ok && !v.IsNil()
		})
	}
	if omitempty {
		ps = append(ps, func(owner reflect.Value) bool {
			v, ok := field(owner)
			return ok && !empty(v)
		})
	}
	return ps
}

// empty follows encoding/json: strings and collections are empty when they have no
// elements, everything else when it is the zero value.
func empty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	}
	return v.IsZero()
}
