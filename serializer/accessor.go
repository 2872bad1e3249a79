package serializer

import (
	"iter"
	"reflect"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/wire"
)

// Accessor reads the action collection of an owner. A nil sequence means the
// collection does not apply to the owner or is empty.
type Accessor func(owner reflect.Value) (iter.Seq[reflect.Value], error)

// walker iterates a collection value that is known to be non-nil.
type walker func(v reflect.Value) iter.Seq[reflect.Value]

// reduce finds the element type of a collection type: slices, arrays and
// iter.Seq-shaped funcs, behind any number of pointers up to wire.MaxUnwrap. The
// element must be a struct or a pointer to one.
func reduce(t reflect.Type, path []string) (reflect.Type, walker, error) {
	base, err := wire.Deref(t)
	if err != nil {
		return nil, nil, errors.NotEnumerable(path, t.String())
	}

	var elem reflect.Type
	var walk walker
	switch base.Kind() {
	case reflect.Slice, reflect.Array:
		elem, walk = base.Elem(), walkIndexed
	case reflect.Func:
		e, ok := seqElem(base)
		if !ok {
			return nil, nil, errors.NotEnumerable(path, t.String())
		}
		elem, walk = e, walkSeq(base.In(0))
	default:
		return nil, nil, errors.NotEnumerable(path, t.String())
	}

	shape := elem
	if shape.Kind() == reflect.Pointer {
		shape = shape.Elem()
	}
	if shape.Kind() != reflect.Struct {
		return nil, nil, errors.NotEnumerable(path, t.String())
	}
	return elem, walk, nil
}

// seqElem matches func(yield func(E) bool).
func seqElem(t reflect.Type) (reflect.Type, bool) {
	if t.NumIn() != 1 || t.NumOut() != 0 || t.IsVariadic() {
		return nil, false
	}
	y := t.In(0)
	if y.Kind() != reflect.Func || y.NumIn() != 1 || y.NumOut() != 1 || y.Out(0).Kind() != reflect.Bool {
		return nil, false
	}
	return y.In(0), true
}

func walkIndexed(v reflect.Value) iter.Seq[reflect.Value] {
	return func(yield func(reflect.Value) bool) {
		for i := 0; i < v.Len(); i++ {
			if !yield(v.Index(i)) {
				return
			}
		}
	}
}

func walkSeq(yieldType reflect.Type) walker {
	out := yieldType.Out(0)
	return func(v reflect.Value) iter.Seq[reflect.Value] {
		return func(yield func(reflect.Value) bool) {
			fn := reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
				return []reflect.Value{reflect.ValueOf(yield(args[0])).Convert(out)}
			})
			v.Call([]reflect.Value{fn})
		}
	}
}

// newAccessor builds the guarded read of the collection feature: the extractor runs
// only when every predicate of d holds.
func newAccessor(d *feature.Descriptor, walk walker, path []string) Accessor {
	return func(owner reflect.Value) (iter.Seq[reflect.Value], error) {
		if !d.Applies(owner) {
			return nil, nil
		}
		v, err := d.Extract(owner)
		if err != nil {
			return nil, errors.Extraction(path, err)
		}
		v, ok := indirect(v)
		if !ok || (v.Kind() != reflect.Func && v.Len() == 0) {
			return nil, nil
		}
		return walk(v), nil
	}
}

type accessorKey struct {
	outer      reflect.Type
	elem       reflect.Type
	collection *feature.Descriptor
}

// AccessorCache memoizes collection accessors per (outer type, element type,
// collection descriptor).
type AccessorCache struct {
	cache *lru.Cache[accessorKey, Accessor]
}

// NewAccessorCache creates a cache holding up to size accessors.
func NewAccessorCache(size int) (*AccessorCache, error) {
	cache, err := lru.New[accessorKey, Accessor](size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindInvalidInput, err, "accessor cache")
	}
	return &AccessorCache{cache: cache}, nil
}

// Len returns the number of cached accessors.
func (c *AccessorCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

func (c *AccessorCache) get(outer, elem reflect.Type, d *feature.Descriptor, build func() Accessor) Accessor {
	if c == nil {
		return build()
	}
	key := accessorKey{outer: outer, elem: elem, collection: d}
	if a, ok := c.cache.Get(key); ok {
		return a
	}
	a := build()
	c.cache.Add(key, a)
	return a
}
