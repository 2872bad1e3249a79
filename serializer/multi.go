package serializer

import (
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/example"
	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/label"
	"github.com/wippyai/featurize/wire"
)

// Multi serializes a type with an action collection into a multi-line example: one
// shared example from the remaining features, then one example per action.
type Multi struct {
	outer      reflect.Type
	elem       reflect.Type
	collection *feature.Descriptor
	shared     *Single
	action     *Single
	access     Accessor
	opts       Options
}

// TryCompile compiles a multi-line serializer when all contains the collection feature
// named feature.MultiProperty. It returns (nil, nil) when it does not.
func TryCompile(outer reflect.Type, all *feature.Set, opts Options) (*Multi, error) {
	if all == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "nil feature set")
	}
	collection, ok := all.Find(feature.MultiProperty)
	if !ok {
		return nil, nil
	}

	start := time.Now()
	path := []string{collection.Name}
	elem, walk, err := reduce(collection.Type, path)
	if err != nil {
		return nil, err
	}

	var shared *Single
	if rest := all.Without(collection); rest.Len() > 0 {
		if shared, err = CompileSingle(rest, opts); err != nil {
			return nil, err
		}
	}

	if opts.Discoverer == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindInvalidInput).
			Path(path...).
			GoType(typeName{outer}.String()).
			Detail("action collection requires a discoverer").
			Build()
	}
	elemBase, err := wire.Deref(elem)
	if err != nil {
		return nil, withPath(err, path)
	}
	elemSet, err := opts.Discoverer.Discover(elemBase)
	if err != nil {
		return nil, withPath(err, path)
	}
	action, err := CompileSingle(elemSet, opts)
	if err != nil {
		return nil, err
	}

	access := opts.Accessors.get(outer, elem, collection, func() Accessor {
		return newAccessor(collection, walk, path)
	})

	Logger().Debug("compiled multi-line serializer",
		zap.Stringer("type", typeName{outer}),
		zap.Stringer("element", elem),
		zap.Bool("shared", shared != nil),
		zap.Duration("elapsed", time.Since(start)))

	return &Multi{
		outer:      outer,
		elem:       elem,
		collection: collection,
		shared:     shared,
		action:     action,
		access:     access,
		opts:       opts,
	}, nil
}

// Type returns the outer type.
func (m *Multi) Type() reflect.Type { return m.outer }

// Element returns the element type of the action collection.
func (m *Multi) Element() reflect.Type { return m.elem }

// Shared returns the serializer of the shared example, or nil when the type has no
// features besides the collection.
func (m *Multi) Shared() *Single { return m.shared }

// Action returns the serializer of action examples.
func (m *Multi) Action() *Single { return m.action }

// Accessor returns the compiled collection accessor.
func (m *Multi) Accessor() Accessor { return m.access }

// Serialize writes the shared example and one example per action. Labels belong to a
// single action, so a non-nil lbl is rejected; use SerializeAt.
func (m *Multi) Serialize(ctx *example.Context, v reflect.Value, lbl label.Label) error {
	if lbl != nil && !label.IsShared(lbl) {
		return errors.InvalidInput(errors.PhaseSerialize, "multi-line examples take their label through SerializeAt")
	}
	return m.serialize(ctx, v, nil, -1)
}

// SerializeAt is Serialize with lbl attached to the action example at index.
func (m *Multi) SerializeAt(ctx *example.Context, v reflect.Value, lbl label.Label, index int) error {
	if index < 0 {
		return errors.OutOfBounds(errors.PhaseSerialize, []string{m.collection.Name}, index, 0)
	}
	return m.serialize(ctx, v, lbl, index)
}

func (m *Multi) serialize(ctx *example.Context, v reflect.Value, lbl label.Label, index int) error {
	owner, ok := indirect(v)
	if !ok {
		return errors.NilPointer(errors.PhaseSerialize, nil, typeOf(v).String())
	}
	owner = addressable(owner)

	mark := ctx.Mark()
	if err := m.emit(ctx, owner, lbl, index); err != nil {
		ctx.Rollback(mark)
		return err
	}
	return nil
}

func (m *Multi) emit(ctx *example.Context, owner reflect.Value, lbl label.Label, index int) error {
	if m.shared != nil {
		if err := m.shared.emit(ctx, owner, true, label.Shared); err != nil {
			return err
		}
	}

	seq, err := m.access(owner)
	if err != nil {
		return err
	}

	n := 0
	if seq != nil {
		for elem := range seq {
			var l label.Label
			if n == index {
				l = lbl
			}
			if err := m.action.emit(ctx, elem, false, l); err != nil {
				return err
			}
			n++
		}
	}

	if index >= n {
		return errors.OutOfBounds(errors.PhaseSerialize, []string{m.collection.Name}, index, n)
	}
	return nil
}
