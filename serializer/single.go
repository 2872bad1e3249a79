package serializer

import (
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/example"
	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/label"
)

// Compiled is a serializer produced for one type. It holds no per-call state and is
// safe for concurrent use as long as every call writes into its own context.
type Compiled interface {
	// Serialize writes v as one example, or as a multi-line example when the type
	// has an action collection.
	Serialize(ctx *example.Context, v reflect.Value, lbl label.Label) error
	// Type returns the type the serializer was compiled for.
	Type() reflect.Type
}

// Single serializes every feature of a type into one example.
type Single struct {
	set     *feature.Set
	writers []writeFunc
	opts    Options
}

// CompileSingle compiles a serializer writing the features of set in set order.
// An empty set yields a serializer that writes empty examples.
func CompileSingle(set *feature.Set, opts Options) (*Single, error) {
	if set == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "nil feature set")
	}

	start := time.Now()
	c := &compiler{opts: opts}
	writers, err := c.compileSet(set, nil, 0)
	if err != nil {
		return nil, err
	}

	Logger().Debug("compiled single-line serializer",
		zap.Stringer("type", typeName{set.Type()}),
		zap.String("mode", opts.mode()),
		zap.Int("features", set.Len()),
		zap.Duration("elapsed", time.Since(start)))

	return &Single{set: set, writers: writers, opts: opts}, nil
}

// Set returns the descriptors the serializer writes.
func (s *Single) Set() *feature.Set { return s.set }

// Type returns the type of the descriptor set.
func (s *Single) Type() reflect.Type { return s.set.Type() }

// Write writes the features of v into the open example of ctx. Nil pointers write
// nothing.
func (s *Single) Write(ctx *example.Context, v reflect.Value) error {
	owner, ok := indirect(v)
	if !ok {
		return nil
	}
	if t := s.set.Type(); t != nil && owner.Type() != t {
		return errors.TypeMismatch(errors.PhaseSerialize, nil, owner.Type().String(), t.String())
	}
	owner = addressable(owner)
	for _, w := range s.writers {
		if err := w(ctx, owner); err != nil {
			return err
		}
	}
	return nil
}

// Serialize writes v as one example labeled lbl. On error nothing written by the call
// remains in ctx.
func (s *Single) Serialize(ctx *example.Context, v reflect.Value, lbl label.Label) error {
	if _, ok := indirect(v); !ok {
		return errors.NilPointer(errors.PhaseSerialize, nil, typeOf(v).String())
	}
	mark := ctx.Mark()
	if err := s.emit(ctx, v, false, lbl); err != nil {
		ctx.Rollback(mark)
		return err
	}
	return nil
}

func (s *Single) emit(ctx *example.Context, v reflect.Value, shared bool, lbl label.Label) error {
	if err := ctx.Begin(shared, lbl); err != nil {
		return err
	}
	if err := s.Write(ctx, v); err != nil {
		return err
	}
	if err := ctx.End(); err != nil {
		return err
	}
	if s.opts.StringExamples {
		if _, err := ctx.Render(); err != nil {
			return err
		}
	}
	return nil
}

// typeName prints nil types without panicking.
type typeName struct{ t reflect.Type }

func typeOf(v reflect.Value) typeName {
	if !v.IsValid() {
		return typeName{}
	}
	return typeName{v.Type()}
}

func (n typeName) String() string {
	if n.t == nil {
		return "<nil>"
	}
	return n.t.String()
}
