// Package serializer compiles example types into reusable serializers.
//
// Compilation inspects a type's feature set once. A type whose set contains the
// collection feature named feature.MultiProperty compiles into a *Multi that writes
// one shared example from the remaining features followed by one example per action
// element. Any other type compiles into a *Single over its full feature set.
//
// Compile-time problems are schema errors and no serializer is returned:
//
//	s, err := serializer.CompileSingle(set, opts)
//	if errors.IsSchema(err) { ... }
//
// Per-call extraction failures are returned by Serialize, and the context is left as
// it was before the call:
//
//	err := s.Serialize(ctx, reflect.ValueOf(v), nil)
//	if errors.IsExtraction(err) { ... }
//
// A Factory owns caching. It compiles each type at most once for its settings:
//
//	f, _ := serializer.NewFactory(config.Default())
//	s, err := serializer.For[Event](f)
//	err = s.SerializeAt(ctx, event, label.ContextualBandit{Action: 2, Cost: 1, Probability: 0.5}, 1)
//
// With Options.Codegen writers are specialized per feature while compiling and plain
// scalar fields are read through their offsets. Without it a single reflective writer
// decides the kind of every value per call. Both produce the same examples.
package serializer
