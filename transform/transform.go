// Package transform rewrites numeric features with functions exported by WebAssembly
// modules.
//
// A module exports a function taking and returning one f64. Bound to a feature name, it
// is applied to every value of that feature while serializing:
//
//	m, err := transform.Load(ctx, wasmBytes, "transform", nil)
//	f := transform.NewFeaturizer(ctx).Bind("income", m)
//	settings := config.Default()
//	settings.Featurizer = f
//
// Numeric scalars and dense vectors are supported; vectors are transformed per element.
package transform

import (
	"context"
	"reflect"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/example"
	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/wire"
)

// Config holds configuration for module loading
type Config struct {
	// MemoryLimitPages sets the maximum memory of the module in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Module is an instantiated transform function.
// Calls are serialized; a module can be shared by concurrent serializers.
type Module struct {
	runtime wazero.Runtime
	module  api.Module
	fn      api.Function
	export  string
	mu      sync.Mutex
}

// Load compiles and instantiates wasmBytes and resolves the f64 -> f64 function
// exported as export.
func Load(ctx context.Context, wasmBytes []byte, export string, cfg *Config) (*Module, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	m, err := instantiate(ctx, runtime, wasmBytes, export)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}

	Logger().Debug("loaded transform module", zap.String("export", export))
	return m, nil
}

func instantiate(ctx context.Context, runtime wazero.Runtime, wasmBytes []byte, export string) (*Module, error) {
	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransform, errors.KindInvalidData, err, "compile module")
	}
	mod, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	fn := mod.ExportedFunction(export)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseTransform, "export", export)
	}
	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 1 || params[0] != api.ValueTypeF64 || len(results) != 1 || results[0] != api.ValueTypeF64 {
		return nil, errors.New(errors.PhaseTransform, errors.KindTypeMismatch).
			Path(export).
			WireType("func(f64) -> f64").
			Detail("export has %d params and %d results", len(params), len(results)).
			Build()
	}

	return &Module{runtime: runtime, module: mod, fn: fn, export: export}, nil
}

// Apply runs the transform on x.
func (m *Module) Apply(ctx context.Context, x float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results, err := m.fn.Call(ctx, api.EncodeF64(x))
	if err != nil {
		return 0, errors.New(errors.PhaseTransform, errors.KindInvalidData).
			Path(m.export).
			Value(x).
			Cause(err).
			Detail("transform call failed").
			Build()
	}
	return api.DecodeF64(results[0]), nil
}

// Close releases the module and its runtime.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// Featurizer applies bound modules to features by name.
type Featurizer struct {
	ctx      context.Context
	bindings map[string]*Module
}

// NewFeaturizer creates a featurizer whose transforms run with ctx.
func NewFeaturizer(ctx context.Context) *Featurizer {
	return &Featurizer{ctx: ctx, bindings: make(map[string]*Module)}
}

// Bind applies m to the feature called name. It must not be called after the
// featurizer is handed to a serializer factory.
func (f *Featurizer) Bind(name string, m *Module) *Featurizer {
	f.bindings[name] = m
	return f
}

// Featurize claims features with a bound module.
func (f *Featurizer) Featurize(d *feature.Descriptor) (feature.Writer, bool, error) {
	m, ok := f.bindings[d.Name]
	if !ok {
		return nil, false, nil
	}

	base, err := wire.Deref(d.Type)
	if err != nil {
		return nil, false, err
	}
	switch {
	case wire.IsNumber(base):
		return f.scalar(m), true, nil
	case (base.Kind() == reflect.Slice || base.Kind() == reflect.Array) && wire.IsNumber(base.Elem()):
		return f.vector(m), true, nil
	}
	return nil, false, errors.New(errors.PhaseTransform, errors.KindTypeMismatch).
		Path(d.Name).
		GoType(d.Type.String()).
		WireType(wire.Name(wit.F64{})).
		Detail("transforms apply to numeric features").
		Build()
}

func (f *Featurizer) scalar(m *Module) feature.Writer {
	return func(ctx *example.Context, d *feature.Descriptor, v reflect.Value) error {
		x, _ := wire.Float(v)
		y, err := m.Apply(f.ctx, x)
		if err != nil {
			return err
		}
		return ctx.Write(d.Namespace, d.Name, example.Number(y))
	}
}

func (f *Featurizer) vector(m *Module) feature.Writer {
	return func(ctx *example.Context, d *feature.Descriptor, v reflect.Value) error {
		out := make([]float64, v.Len())
		for i := range out {
			x, _ := wire.Float(v.Index(i))
			y, err := m.Apply(f.ctx, x)
			if err != nil {
				return err
			}
			out[i] = y
		}
		return ctx.Write(d.Namespace, d.Name, example.Vector(out))
	}
}
