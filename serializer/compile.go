package serializer

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"slices"
	"unsafe"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/example"
	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/wire"
)

// writeFunc writes one feature of owner into the open example of ctx.
// Owner is a struct value.
type writeFunc func(ctx *example.Context, owner reflect.Value) error

// valueFunc writes an extracted, non-nil feature value.
type valueFunc func(ctx *example.Context, v reflect.Value) error

type compiler struct {
	opts Options
}

func (c *compiler) compileSet(set *feature.Set, path []string, depth int) ([]writeFunc, error) {
	writers := make([]writeFunc, 0, set.Len())
	for d := range set.All() {
		w, err := c.compileFeature(set.Type(), d, append(slices.Clip(path), d.Name), depth)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, nil
}

func (c *compiler) compileFeature(owner reflect.Type, d *feature.Descriptor, path []string, depth int) (writeFunc, error) {
	if c.opts.Featurizer != nil {
		w, ok, err := c.opts.Featurizer.Featurize(d)
		if err != nil {
			e := errors.Unsupported(errors.PhaseCompile, path, d.Type.String(), "featurizer rejected feature")
			e.Cause = err
			if wt, werr := wire.Of(d.Type); werr == nil {
				e.WireType = wire.Name(wt)
			}
			return nil, e
		}
		if ok && w != nil {
			return guard(d, path, func(ctx *example.Context, v reflect.Value) error {
				return w(ctx, d, v)
			}), nil
		}
	}

	wt, err := wire.Of(d.Type)
	if err != nil {
		return nil, withPath(err, path)
	}
	kind := wire.Classify(wt)

	if kind == wire.KindGroup {
		emit, err := c.compileGroup(d, wt, path, depth)
		if err != nil {
			return nil, err
		}
		return guard(d, path, emit), nil
	}

	if !c.opts.Codegen {
		return guard(d, path, reflective(d.Namespace, d.Name)), nil
	}

	emit, err := specialized(d, wt, path)
	if err != nil {
		return nil, err
	}
	slow := guard(d, path, emit)
	if fast := direct(owner, d, kind, slow); fast != nil {
		return fast, nil
	}
	return slow, nil
}

func (c *compiler) compileGroup(d *feature.Descriptor, wt wit.Type, path []string, depth int) (valueFunc, error) {
	if depth >= c.opts.maxDepth() {
		e := errors.Unsupported(errors.PhaseCompile, path, d.Type.String(),
			fmt.Sprintf("feature groups nested deeper than %d", c.opts.maxDepth()))
		e.WireType = wire.Name(wt)
		return nil, e
	}
	if c.opts.Discoverer == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindInvalidInput).
			Path(path...).
			GoType(d.Type.String()).
			Detail("nested feature group requires a discoverer").
			Build()
	}

	base, err := wire.Deref(d.Type)
	if err != nil {
		return nil, withPath(err, path)
	}
	set, err := c.opts.Discoverer.Discover(base)
	if err != nil {
		return nil, withPath(err, path)
	}
	inner, err := c.compileSet(set, path, depth+1)
	if err != nil {
		return nil, err
	}

	ns, name := d.Namespace, d.Name
	return func(ctx *example.Context, v reflect.Value) error {
		if err := ctx.BeginGroup(ns, name); err != nil {
			return err
		}
		v = addressable(v)
		for _, w := range inner {
			if err := w(ctx, v); err != nil {
				return err
			}
		}
		return ctx.EndGroup()
	}, nil
}

// guard applies the descriptor's predicates and extractor around emit. Nil values are
// skipped. Values returned by custom extractors must have the declared type.
func guard(d *feature.Descriptor, path []string, emit valueFunc) writeFunc {
	declared, want := extractedType(d)
	return func(ctx *example.Context, owner reflect.Value) error {
		if !d.Applies(owner) {
			return nil
		}
		v, err := d.Extract(owner)
		if err != nil {
			return errors.Extraction(path, err)
		}
		v, ok := indirect(v)
		if !ok {
			return nil
		}
		if declared != nil && v.Type() != declared {
			return errors.TypeMismatch(errors.PhaseSerialize, path, v.Type().String(), want)
		}
		return emit(ctx, v)
	}
}

// extractedType returns the type guard checks extracted values against and its wire
// name. The type is nil when the descriptor reads its field directly.
func extractedType(d *feature.Descriptor) (reflect.Type, string) {
	if d.IsField() {
		return nil, ""
	}
	base, err := wire.Deref(d.Type)
	if err != nil || base.Kind() == reflect.Interface {
		return nil, ""
	}
	if wt, err := wire.Of(base); err == nil {
		return base, wire.Name(wt)
	}
	return base, d.Type.String()
}

// specialized picks a writer for the declared type at compile time.
func specialized(d *feature.Descriptor, wt wit.Type, path []string) (valueFunc, error) {
	ns, name := d.Namespace, d.Name
	kind := wire.Classify(wt)
	base, err := wire.Deref(d.Type)
	if err != nil {
		return nil, withPath(err, path)
	}

	switch kind {
	case wire.KindNumber:
		read := numberReader(base)
		return func(ctx *example.Context, v reflect.Value) error {
			return ctx.Write(ns, name, example.Number(read(v)))
		}, nil
	case wire.KindString:
		return func(ctx *example.Context, v reflect.Value) error {
			if s := v.String(); s != "" {
				return ctx.Write(ns, name, example.String(s))
			}
			return nil
		}, nil
	case wire.KindBool:
		return func(ctx *example.Context, v reflect.Value) error {
			return ctx.Write(ns, name, example.Bool(v.Bool()))
		}, nil
	case wire.KindTokens:
		return func(ctx *example.Context, v reflect.Value) error {
			tokens := make([]string, v.Len())
			for i := range tokens {
				tokens[i] = v.Index(i).String()
			}
			return ctx.Write(ns, name, example.Tokens(tokens))
		}, nil
	case wire.KindVector:
		read := numberReader(base.Elem())
		return func(ctx *example.Context, v reflect.Value) error {
			vec := make([]float64, v.Len())
			for i := range vec {
				vec[i] = read(v.Index(i))
			}
			return ctx.Write(ns, name, example.Vector(vec))
		}, nil
	case wire.KindDict:
		read := numberReader(base.Elem())
		return func(ctx *example.Context, v reflect.Value) error {
			dict := make(map[string]float64, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				dict[iter.Key().String()] = read(iter.Value())
			}
			return ctx.Write(ns, name, example.Dict(dict))
		}, nil
	}

	e := errors.Unsupported(errors.PhaseCompile, path, d.Type.String(), fmt.Sprintf("no writer for %s features", kind))
	e.WireType = wire.Name(wt)
	return nil, e
}

func numberReader(t reflect.Type) func(reflect.Value) float64 {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(v reflect.Value) float64 { return float64(v.Int()) }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(v reflect.Value) float64 { return float64(v.Uint()) }
	default:
		return func(v reflect.Value) float64 { return v.Float() }
	}
}

// direct reads plain scalar fields through their offset from the owner's address.
// It returns nil when the field cannot be read that way. Owners that are not
// addressable go through slow.
func direct(ownerType reflect.Type, d *feature.Descriptor, kind wire.Kind, slow writeFunc) writeFunc {
	if !kind.IsScalar() || !d.IsField() {
		return nil
	}
	off, ok := fieldOffset(ownerType, d)
	if !ok {
		return nil
	}

	ns, name := d.Namespace, d.Name
	var read func(p unsafe.Pointer) (example.Value, bool)
	switch d.Type.Kind() {
	case reflect.Bool:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Bool(*(*bool)(p)), true }
	case reflect.Int:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*int)(p))), true }
	case reflect.Int8:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*int8)(p))), true }
	case reflect.Int16:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*int16)(p))), true }
	case reflect.Int32:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*int32)(p))), true }
	case reflect.Int64:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*int64)(p))), true }
	case reflect.Uint:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*uint)(p))), true }
	case reflect.Uint8:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*uint8)(p))), true }
	case reflect.Uint16:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*uint16)(p))), true }
	case reflect.Uint32:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*uint32)(p))), true }
	case reflect.Uint64:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*uint64)(p))), true }
	case reflect.Float32:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(float64(*(*float32)(p))), true }
	case reflect.Float64:
		read = func(p unsafe.Pointer) (example.Value, bool) { return example.Number(*(*float64)(p)), true }
	case reflect.String:
		read = func(p unsafe.Pointer) (example.Value, bool) {
			s := *(*string)(p)
			return example.String(s), s != ""
		}
	default:
		return nil
	}

	return func(ctx *example.Context, owner reflect.Value) error {
		if !owner.CanAddr() || owner.Type() != ownerType {
			return slow(ctx, owner)
		}
		if !d.Applies(owner) {
			return nil
		}
		v, ok := read(unsafe.Add(owner.Addr().UnsafePointer(), off))
		if !ok {
			return nil
		}
		return ctx.Write(ns, name, v)
	}
}

// fieldOffset sums field offsets along d.Index. Every step but the last must be an
// embedded struct value, never a pointer.
func fieldOffset(owner reflect.Type, d *feature.Descriptor) (uintptr, bool) {
	if owner == nil || owner.Kind() != reflect.Struct {
		return 0, false
	}
	t := owner
	var off uintptr
	for i, idx := range d.Index {
		if t.Kind() != reflect.Struct || idx < 0 || idx >= t.NumField() {
			return 0, false
		}
		f := t.Field(idx)
		off += f.Offset
		if i == len(d.Index)-1 {
			return off, f.Type == d.Type
		}
		t = f.Type
	}
	return 0, false
}

// reflective writes any supported value, deciding its kind per call.
func reflective(ns, name string) valueFunc {
	return func(ctx *example.Context, v reflect.Value) error {
		wt, err := wire.Of(v.Type())
		if err != nil {
			return err
		}
		switch wire.Classify(wt) {
		case wire.KindNumber:
			f, _ := wire.Float(v)
			return ctx.Write(ns, name, example.Number(f))
		case wire.KindString:
			if s := v.String(); s != "" {
				return ctx.Write(ns, name, example.String(s))
			}
			return nil
		case wire.KindBool:
			return ctx.Write(ns, name, example.Bool(v.Bool()))
		case wire.KindTokens:
			tokens := make([]string, 0, v.Len())
			for i := 0; i < v.Len(); i++ {
				tokens = append(tokens, v.Index(i).String())
			}
			return ctx.Write(ns, name, example.Tokens(tokens))
		case wire.KindVector:
			vec := make([]float64, 0, v.Len())
			for i := 0; i < v.Len(); i++ {
				f, _ := wire.Float(v.Index(i))
				vec = append(vec, f)
			}
			return ctx.Write(ns, name, example.Vector(vec))
		case wire.KindDict:
			dict := make(map[string]float64, v.Len())
			for _, k := range v.MapKeys() {
				f, _ := wire.Float(v.MapIndex(k))
				dict[k.String()] = f
			}
			return ctx.Write(ns, name, example.Dict(dict))
		}
		return errors.New(errors.PhaseSerialize, errors.KindTypeMismatch).
			Path(name).
			GoType(v.Type().String()).
			Build()
	}
}

// indirect strips pointers and reports false for nil or invalid values.
func indirect(v reflect.Value) (reflect.Value, bool) {
	for i := 0; ; i++ {
		if !v.IsValid() {
			return v, false
		}
		switch v.Kind() {
		case reflect.Pointer:
			if v.IsNil() || i == wire.MaxUnwrap {
				return v, false
			}
			v = v.Elem()
			continue
		case reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
			if v.IsNil() {
				return v, false
			}
		}
		return v, true
	}
}

// addressable returns v or an addressable copy of it.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() || !v.CanInterface() {
		return v
	}
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}

func withPath(err error, path []string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && len(e.Path) == 0 {
		e.Path = path
	}
	return err
}
