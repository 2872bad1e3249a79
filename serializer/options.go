package serializer

import (
	"github.com/wippyai/featurize/feature"
)

// DefaultMaxDepth bounds how deeply struct-valued features nest into groups.
const DefaultMaxDepth = 8

// Options controls how serializers are compiled.
type Options struct {
	// Featurizer is consulted for every feature before the built-in writers.
	Featurizer feature.Featurizer
	// Discoverer supplies descriptor sets for action elements and nested groups.
	Discoverer feature.Discoverer
	// Accessors memoizes collection accessors. Nil disables caching.
	Accessors *AccessorCache
	// MaxDepth limits group nesting; zero means DefaultMaxDepth.
	MaxDepth int
	// StringExamples renders the engine text line of every produced example.
	StringExamples bool
	// Codegen selects writers specialized per feature at compile time instead of the
	// generic reflective writer.
	Codegen bool
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

func (o Options) mode() string {
	if o.Codegen {
		return "codegen"
	}
	return "reflect"
}
