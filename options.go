package descargan

import (
	"fmt"

	"gorgonia.org/tensor"
)

const (
	// numClasses Ill and healthy
	numClasses = 2

	defaultFilters  = 64
	defaultChannels = 1
	defaultMomentum = 0.01
)

type modelConfig struct {
	name          string
	channels      int
	filters       int
	batchNorm     bool
	dtype         tensor.Dtype
	channelsFirst bool
	transposed    bool
}

// Option Configures Generator or Discriminator
type Option func(*modelConfig)

// WithChannels Number of image channels. Default is 1
func WithChannels(n int) Option {
	return func(cfg *modelConfig) { cfg.channels = n }
}

// WithFilters Base filter width 'nf'. Default is 64
func WithFilters(nf int) Option {
	return func(cfg *modelConfig) { cfg.filters = nf }
}

// WithBatchNorm Enables/disables normalization in convolutional blocks. Default is true.
// Upsampling blocks are always normalized.
func WithBatchNorm(enabled bool) Option {
	return func(cfg *modelConfig) { cfg.batchNorm = enabled }
}

// WithDtype Dtype of parameters and activations. Default is tensor.Float32
func WithDtype(dt tensor.Dtype) Option {
	return func(cfg *modelConfig) { cfg.dtype = dt }
}

// WithChannelsFirst Inputs and outputs are (batch, channels, height, width) instead of (batch, height, width, channels)
func WithChannelsFirst() Option {
	return func(cfg *modelConfig) { cfg.channelsFirst = true }
}

// WithTransposedConv Generator upsamples with transposed convolutions instead of upsample+conv
func WithTransposedConv() Option {
	return func(cfg *modelConfig) { cfg.transposed = true }
}

// WithName Prefix for names of model's nodes. Needed when several models of the same kind share a graph
func WithName(name string) Option {
	return func(cfg *modelConfig) { cfg.name = name }
}

func newModelConfig(defaultName string, opts ...Option) (modelConfig, error) {
	cfg := modelConfig{
		name:      defaultName,
		channels:  defaultChannels,
		filters:   defaultFilters,
		batchNorm: true,
		dtype:     tensor.Float32,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.channels < 1 {
		return cfg, fmt.Errorf("Number of channels must be positive, but got %d", cfg.channels)
	}
	if cfg.filters < 1 {
		return cfg, fmt.Errorf("Number of filters must be positive, but got %d", cfg.filters)
	}
	if cfg.dtype != tensor.Float32 && cfg.dtype != tensor.Float64 {
		return cfg, fmt.Errorf("Dtype %v is not supported. Use tensor.Float32 or tensor.Float64", cfg.dtype)
	}
	if cfg.name == "" {
		cfg.name = defaultName
	}
	return cfg, nil
}
