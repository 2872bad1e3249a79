// Package featurize compiles Go types into serializers that turn values into
// Vowpal Wabbit learning examples.
//
// A serializer is compiled once per type from the type's feature descriptors and
// reused for every value. Types that carry an action collection produce multi-line
// examples: one shared example with the outer features followed by one example per
// action.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	featurize/           Root package with the configured entry points
//	├── serializer/      Compiled single and multi-line serializers, factory and caches
//	├── feature/         Feature descriptors, sets and the featurizer hook
//	├── discovery/       Descriptor discovery from vw or json struct tags
//	├── example/         Example model, writing context and text formatting
//	├── label/           Labels and label comparators
//	├── wire/            Mapping of Go types to WIT wire kinds
//	├── transform/       Wasm feature transforms run with wazero
//	├── config/          Settings from defaults, environment and options
//	├── metrics/         Compilation metrics
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Declare features with struct tags and serialize values:
//
//	type Item struct {
//	    Name   string  `vw:"name"`
//	    Weight float64 `vw:"w"`
//	}
//
//	type Request struct {
//	    Hour  int    `vw:"hour,ns=ctx"`
//	    Items []Item `vw:"_multi"`
//	}
//
//	f, err := featurize.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, err := featurize.For[Request](f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	lines, err := featurize.Lines(s, req, nil)
//	// shared |ctx hour:9
//	// | name_a w:1
//	// | name_b w:2
//
// # Labels
//
// Single-line serializers take their label through Serialize. Multi-line serializers
// attach a label to one action with SerializeAt:
//
//	err := s.SerializeAt(ctx, req, label.ContextualBandit{Action: 2, Cost: -1, Probability: 0.4}, 1)
//
// # Thread Safety
//
// Factories and compiled serializers are safe for concurrent use. An example.Context
// must be used by a single goroutine.
package featurize
