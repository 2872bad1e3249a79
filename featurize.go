package featurize

import (
	"github.com/wippyai/featurize/config"
	"github.com/wippyai/featurize/example"
	"github.com/wippyai/featurize/label"
	"github.com/wippyai/featurize/serializer"
)

// New returns a serializer factory for the settings loaded from defaults, FEATURIZE_*
// environment variables and opts, in that order.
func New(opts ...config.Option) (*serializer.Factory, error) {
	settings, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	return serializer.NewFactory(settings)
}

// For returns the serializer for T from f.
func For[T any](f *serializer.Factory) (*serializer.Serializer[T], error) {
	return serializer.For[T](f)
}

// Lines serializes v with lbl and returns the text line of every produced example.
func Lines[T any](s *serializer.Serializer[T], v T, lbl label.Label) ([]string, error) {
	ctx := example.Acquire()
	defer example.Release(ctx)

	if err := s.Serialize(ctx, v, lbl); err != nil {
		return nil, err
	}
	examples := ctx.Examples()
	lines := make([]string, len(examples))
	for i := range examples {
		lines[i] = example.Format(&examples[i])
	}
	return lines, nil
}
