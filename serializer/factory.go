package serializer

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wippyai/featurize/config"
	"github.com/wippyai/featurize/discovery"
	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/example"
	"github.com/wippyai/featurize/feature"
	"github.com/wippyai/featurize/label"
	"github.com/wippyai/featurize/metrics"
)

// Factory compiles serializers for one set of settings and caches them per type.
// Each type is compiled at most once, even under concurrent requests.
type Factory struct {
	discoverer feature.Discoverer
	recorder   metrics.Recorder
	settings   config.Settings
	opts       Options
	cache      sync.Map // reflect.Type -> Compiled
	group      singleflight.Group
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithDiscoverer replaces the discoverer selected by the settings.
func WithDiscoverer(d feature.Discoverer) FactoryOption {
	return func(f *Factory) { f.discoverer = d }
}

// WithRecorder reports compilations to r.
func WithRecorder(r metrics.Recorder) FactoryOption {
	return func(f *Factory) { f.recorder = r }
}

// NewFactory creates a factory for settings.
func NewFactory(settings config.Settings, opts ...FactoryOption) (*Factory, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	accessors, err := NewAccessorCache(settings.AccessorCacheSize)
	if err != nil {
		return nil, err
	}

	f := &Factory{
		discoverer: discovery.New(discovery.Mode(settings.Discovery)),
		recorder:   metrics.Nop,
		settings:   settings,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.opts = Options{
		Featurizer:     settings.Featurizer,
		Discoverer:     f.discoverer,
		Accessors:      accessors,
		MaxDepth:       settings.MaxDepth,
		StringExamples: settings.StringExamples,
		Codegen:        settings.Codegen,
	}
	return f, nil
}

// Settings returns the factory's settings.
func (f *Factory) Settings() config.Settings { return f.settings }

// Discoverer returns the discoverer feature sets are built with.
func (f *Factory) Discoverer() feature.Discoverer { return f.discoverer }

// Accessors returns the factory's accessor cache.
func (f *Factory) Accessors() *AccessorCache { return f.opts.Accessors }

// Compile returns the serializer for t, compiling it on first use. Types with an action
// collection get a *Multi, all others a *Single over their full feature set.
func (f *Factory) Compile(t reflect.Type) (Compiled, error) {
	if t == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "nil reflect.Type")
	}
	if cached, ok := f.cache.Load(t); ok {
		f.recorder.CacheHit()
		return cached.(Compiled), nil
	}

	v, err, _ := f.group.Do(fmt.Sprintf("%p", t), func() (any, error) {
		if cached, ok := f.cache.Load(t); ok {
			return cached, nil
		}
		c, err := f.compile(t)
		if err != nil {
			return nil, err
		}
		f.cache.Store(t, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Compiled), nil
}

func (f *Factory) compile(t reflect.Type) (c Compiled, err error) {
	start := time.Now()
	shape := "single"
	defer func() {
		f.recorder.Compiled(shape, time.Since(start), err)
	}()

	set, err := f.discoverer.Discover(t)
	if err != nil {
		return nil, err
	}
	if _, ok := set.Find(feature.MultiProperty); ok {
		shape = "multi"
	}

	multi, err := TryCompile(t, set, f.opts)
	if err != nil {
		return nil, err
	}
	if multi != nil {
		return multi, nil
	}
	return CompileSingle(set, f.opts)
}

// Serializer is a compiled serializer for values of T.
type Serializer[T any] struct {
	compiled Compiled
}

// For returns the serializer for T from f.
func For[T any](f *Factory) (*Serializer[T], error) {
	c, err := f.Compile(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return &Serializer[T]{compiled: c}, nil
}

// Compiled returns the underlying serializer.
func (s *Serializer[T]) Compiled() Compiled { return s.compiled }

// IsMulti reports whether T serializes into multi-line examples.
func (s *Serializer[T]) IsMulti() bool {
	_, ok := s.compiled.(*Multi)
	return ok
}

// Serialize writes v into ctx.
func (s *Serializer[T]) Serialize(ctx *example.Context, v T, lbl label.Label) error {
	return s.compiled.Serialize(ctx, reflect.ValueOf(&v).Elem(), lbl)
}

// SerializeAt writes v into ctx with lbl on the action example at index. Only
// multi-line serializers accept it.
func (s *Serializer[T]) SerializeAt(ctx *example.Context, v T, lbl label.Label, index int) error {
	m, ok := s.compiled.(*Multi)
	if !ok {
		return errors.InvalidInput(errors.PhaseSerialize, "labels by action index need an action collection")
	}
	return m.SerializeAt(ctx, reflect.ValueOf(&v).Elem(), lbl, index)
}
