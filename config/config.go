// Package config loads serializer settings from defaults and FEATURIZE_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/wippyai/featurize/errors"
	"github.com/wippyai/featurize/feature"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FEATURIZE_"

// Discovery modes.
const (
	DiscoveryTagged = "tagged"
	DiscoveryJSON   = "json"
)

// Settings selects how serializers are compiled. Two factories with different settings
// never share compiled serializers.
type Settings struct {
	// Featurizer overrides how individual features are written.
	Featurizer feature.Featurizer `koanf:"-"`
	// Discovery is the struct tag convention features are read from.
	Discovery string `koanf:"discovery" validate:"oneof=tagged json"`
	// AccessorCacheSize bounds the number of memoized collection accessors.
	AccessorCacheSize int `koanf:"accessor_cache_size" validate:"min=1"`
	// MaxDepth bounds nested feature groups.
	MaxDepth int `koanf:"max_depth" validate:"min=1,max=64"`
	// StringExamples also renders every example as an engine text line.
	StringExamples bool `koanf:"string_examples"`
	// Codegen specializes feature writers at compile time.
	Codegen bool `koanf:"codegen"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		Discovery:         DiscoveryTagged,
		AccessorCacheSize: 256,
		MaxDepth:          8,
		Codegen:           true,
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid settings")
	}
	return nil
}

// Option adjusts settings after they are loaded.
type Option func(*Settings)

// WithStringExamples toggles text line rendering.
func WithStringExamples(enabled bool) Option {
	return func(s *Settings) { s.StringExamples = enabled }
}

// WithCodegen toggles specialized writers.
func WithCodegen(enabled bool) Option {
	return func(s *Settings) { s.Codegen = enabled }
}

// WithDiscovery selects the tag convention.
func WithDiscovery(mode string) Option {
	return func(s *Settings) { s.Discovery = mode }
}

// WithFeaturizer installs a custom featurizer.
func WithFeaturizer(f feature.Featurizer) Option {
	return func(s *Settings) { s.Featurizer = f }
}

// WithAccessorCacheSize sets the accessor cache capacity.
func WithAccessorCacheSize(n int) Option {
	return func(s *Settings) { s.AccessorCacheSize = n }
}

// WithMaxDepth sets the group nesting limit.
func WithMaxDepth(n int) Option {
	return func(s *Settings) { s.MaxDepth = n }
}

// Load layers defaults, the process environment and opts, in that order, and validates
// the result.
func Load(opts ...Option) (Settings, error) {
	return LoadEnv(os.Environ(), opts...)
}

// LoadEnv is Load reading variables from environ ("KEY=value" pairs) instead of the
// process environment.
func LoadEnv(environ []string, opts ...Option) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Settings{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnvKey,
		EnvironFunc:   func() []string { return environ },
	}), nil); err != nil {
		return Settings{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var s Settings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &s,
			TagName:          "koanf",
		},
	}); err != nil {
		return Settings{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode settings")
	}

	for _, opt := range opts {
		opt(&s)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// transformEnvKey maps FEATURIZE_ACCESSOR_CACHE_SIZE to accessor_cache_size.
func transformEnvKey(key, value string) (string, any) {
	return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
}
