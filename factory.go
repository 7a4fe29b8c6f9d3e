package descargan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// upsampleFactor Spatial scale of the upsample+conv strategy
const upsampleFactor = 2

// LayerFactory Builds configured blocks of layers on a graph.
//
// Normalization policy of Conv is fixed at construction. Kernels and biases of Conv
// come from the InitializerPolicy; Deconv and Dense use framework defaults.
// The first construction error sticks and is reported by Err(); later builders return nil.
//
type LayerFactory struct {
	graph     *gorgonia.ExprGraph
	name      string
	dtype     tensor.Dtype
	batchNorm bool
	policy    InitializerPolicy
	defaults  InitializerPolicy
	err       error
}

// NewLayerFactory Creates factory. Node names are prefixed by name.
func NewLayerFactory(g *gorgonia.ExprGraph, name string, dt tensor.Dtype, batchNorm bool, policy InitializerPolicy) *LayerFactory {
	return &LayerFactory{
		graph:     g,
		name:      name,
		dtype:     dt,
		batchNorm: batchNorm,
		policy:    policy,
		defaults:  &defaultPolicy{},
	}
}

// Err Returns first error happened during blocks construction
func (f *LayerFactory) Err() error {
	return f.err
}

// BatchNorm Whether Conv blocks are normalized
func (f *LayerFactory) BatchNorm() bool {
	return f.batchNorm
}

func (f *LayerFactory) fail(err error) *Network {
	if f.err == nil {
		f.err = err
	}
	return nil
}

type blockConfig struct {
	kernelSize int
	stride     int
	momentum   float64
	activation ActivationFunc
	transposed bool
}

// BlockOption Overrides block defaults
type BlockOption func(*blockConfig)

func WithKernelSize(k int) BlockOption {
	return func(cfg *blockConfig) { cfg.kernelSize = k }
}

// WithStride Stride of transposed convolution
func WithStride(s int) BlockOption {
	return func(cfg *blockConfig) { cfg.stride = s }
}

// WithMomentum Momentum of running statistics
func WithMomentum(m float64) BlockOption {
	return func(cfg *blockConfig) { cfg.momentum = m }
}

func WithActivation(fn ActivationFunc) BlockOption {
	return func(cfg *blockConfig) { cfg.activation = fn }
}

// WithTransposed Deconv uses transposed convolution instead of upsample followed by convolution
func WithTransposed(transposed bool) BlockOption {
	return func(cfg *blockConfig) { cfg.transposed = transposed }
}

func newBlockConfig(kernelSize int, opts ...BlockOption) blockConfig {
	cfg := blockConfig{
		kernelSize: kernelSize,
		stride:     2,
		momentum:   defaultMomentum,
		activation: Rectify,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.activation == nil {
		cfg.activation = NoActivation
	}
	return cfg
}

func (f *LayerFactory) nodeName(block, suffix string) string {
	return fmt.Sprintf("%s_%s_%s", f.name, block, suffix)
}

func (f *LayerFactory) kernel(block string, shp tensor.Shape, init *Initializer) *gorgonia.Node {
	return gorgonia.NewTensor(f.graph, f.dtype, shp.Dims(), gorgonia.WithShape(shp...), gorgonia.WithName(f.nodeName(block, "w")), gorgonia.WithInit(init.Fn))
}

func (f *LayerFactory) channelBias(block string, channels int, init *Initializer) *gorgonia.Node {
	return gorgonia.NewTensor(f.graph, f.dtype, 4, gorgonia.WithShape(1, channels, 1, 1), gorgonia.WithName(f.nodeName(block, "b")), gorgonia.WithInit(init.Fn))
}

func (f *LayerFactory) norm(block string, dims, channels int, momentum float64) (*Layer, error) {
	bn, err := NewBatchNorm(f.graph, f.nodeName(block, "bn"), f.dtype, dims, channels, momentum)
	if err != nil {
		return nil, err
	}
	return &Layer{Type: LayerBatchNorm, Norm: bn}, nil
}

// Conv Convolution (stride 1, SAME padding) -> [batch normalization] -> activation.
// Convolution has bias only when normalization is disabled.
// Defaults: kernel 3, momentum 0.01, ReLU
func (f *LayerFactory) Conv(name string, inDepth, filters int, opts ...BlockOption) *Network {
	if f.err != nil {
		return nil
	}
	cfg := newBlockConfig(3, opts...)
	if cfg.kernelSize < 1 || cfg.kernelSize%2 == 0 {
		return f.fail(fmt.Errorf("[%s] SAME padding needs odd kernel size, but got %d", name, cfg.kernelSize))
	}
	if inDepth < 1 || filters < 1 {
		return f.fail(fmt.Errorf("[%s] Depths must be positive, but got in=%d, filters=%d", name, inDepth, filters))
	}
	k := cfg.kernelSize
	conv := &Layer{
		Type:         LayerConvolutional,
		WeightNode:   f.kernel(name, tensor.Shape{filters, inDepth, k, k}, f.policy.KernelInitializer()),
		KernelHeight: k,
		KernelWidth:  k,
		Padding:      []int{k / 2, k / 2},
		Stride:       []int{1, 1},
		Dilation:     []int{1, 1},
	}
	layers := []*Layer{conv}
	if f.batchNorm {
		bn, err := f.norm(name, 4, filters, cfg.momentum)
		if err != nil {
			return f.fail(errors.Wrap(err, fmt.Sprintf("[%s] Can't prepare normalization", name)))
		}
		layers = append(layers, bn)
	} else {
		conv.BiasNode = f.channelBias(name, filters, f.policy.BiasInitializer())
	}
	layers[len(layers)-1].Activation = cfg.activation
	return &Network{Name: f.nodeName(name, "block"), Layers: layers}
}

// Deconv Doubles spatial dimensions -> batch normalization -> activation.
// Normalization is applied regardless of the factory's policy.
//
// Default strategy is nearest-neighbour upsampling followed by 3x3 convolution.
// WithTransposed(true) switches to transposed convolution (defaults: kernel 4, stride 2, SAME padding),
// computed as a sub-pixel convolution with stride*stride output phases.
//
func (f *LayerFactory) Deconv(name string, inDepth, filters int, opts ...BlockOption) *Network {
	if f.err != nil {
		return nil
	}
	cfg := newBlockConfig(4, opts...)
	if inDepth < 1 || filters < 1 {
		return f.fail(fmt.Errorf("[%s] Depths must be positive, but got in=%d, filters=%d", name, inDepth, filters))
	}
	var layers []*Layer
	if !cfg.transposed {
		layers = []*Layer{
			{Type: LayerUpsample, Scale: upsampleFactor},
			{
				Type:         LayerConvolutional,
				WeightNode:   f.kernel(name, tensor.Shape{filters, inDepth, 3, 3}, f.defaults.KernelInitializer()),
				BiasNode:     f.channelBias(name, filters, f.defaults.BiasInitializer()),
				KernelHeight: 3,
				KernelWidth:  3,
				Padding:      []int{1, 1},
				Stride:       []int{1, 1},
				Dilation:     []int{1, 1},
			},
		}
	} else {
		if cfg.stride < 1 || cfg.kernelSize < 1 {
			return f.fail(fmt.Errorf("[%s] Kernel size and stride must be positive, but got %d and %d", name, cfg.kernelSize, cfg.stride))
		}
		k := subPixelKernel(cfg.kernelSize, cfg.stride)
		phases := filters * cfg.stride * cfg.stride
		layers = []*Layer{
			{
				Type:         LayerSubPixel,
				WeightNode:   f.kernel(name, tensor.Shape{phases, inDepth, k, k}, f.defaults.KernelInitializer()),
				BiasNode:     f.channelBias(name, phases, f.defaults.BiasInitializer()),
				KernelHeight: k,
				KernelWidth:  k,
				Padding:      []int{k / 2, k / 2},
				Stride:       []int{1, 1},
				Dilation:     []int{1, 1},
				Scale:        cfg.stride,
			},
		}
	}
	bn, err := f.norm(name, 4, filters, cfg.momentum)
	if err != nil {
		return f.fail(errors.Wrap(err, fmt.Sprintf("[%s] Can't prepare normalization", name)))
	}
	bn.Activation = cfg.activation
	layers = append(layers, bn)
	return &Network{Name: f.nodeName(name, "block"), Layers: layers}
}

// subPixelKernel Taps each output phase of a (kernel, stride) transposed convolution sees,
// rounded up to odd so SAME padding stays symmetric
func subPixelKernel(kernel, stride int) int {
	k := (kernel + stride - 1) / stride
	if k%2 == 0 {
		k++
	}
	return k
}

// Dense Fully connected layer -> batch normalization -> activation. Defaults: momentum 0.01, ReLU
func (f *LayerFactory) Dense(name string, inFeatures, units int, opts ...BlockOption) *Network {
	if f.err != nil {
		return nil
	}
	cfg := newBlockConfig(1, opts...)
	linear := f.linearLayer(name, inFeatures, units)
	if linear == nil {
		return nil
	}
	bn, err := f.norm(name, 2, units, cfg.momentum)
	if err != nil {
		return f.fail(errors.Wrap(err, fmt.Sprintf("[%s] Can't prepare normalization", name)))
	}
	bn.Activation = cfg.activation
	return &Network{Name: f.nodeName(name, "block"), Layers: []*Layer{linear, bn}}
}

// Linear Fully connected layer with bias and given activation, no normalization
func (f *LayerFactory) Linear(name string, inFeatures, units int, activation ActivationFunc) *Network {
	if f.err != nil {
		return nil
	}
	linear := f.linearLayer(name, inFeatures, units)
	if linear == nil {
		return nil
	}
	linear.Activation = activation
	return &Network{Name: f.nodeName(name, "block"), Layers: []*Layer{linear}}
}

func (f *LayerFactory) linearLayer(name string, inFeatures, units int) *Layer {
	if inFeatures < 1 || units < 1 {
		f.fail(fmt.Errorf("[%s] Sizes must be positive, but got in=%d, units=%d", name, inFeatures, units))
		return nil
	}
	return &Layer{
		Type:       LayerLinear,
		WeightNode: f.kernel(name, tensor.Shape{units, inFeatures}, f.defaults.KernelInitializer()),
		BiasNode: gorgonia.NewTensor(f.graph, f.dtype, 2, gorgonia.WithShape(1, units), gorgonia.WithName(f.nodeName(name, "b")),
			gorgonia.WithInit(f.defaults.BiasInitializer().Fn)),
	}
}

// MaxPool 2x2 max pooling with stride 2, no padding
func (f *LayerFactory) MaxPool() *Network {
	return &Network{Name: f.name + "_maxpool", Layers: []*Layer{{
		Type:         LayerMaxpool,
		KernelHeight: 2,
		KernelWidth:  2,
		Padding:      []int{0, 0},
		Stride:       []int{2, 2},
	}}}
}

// Flatten (batch, ...) -> (batch, features)
func (f *LayerFactory) Flatten() *Network {
	return &Network{Name: f.name + "_flatten", Layers: []*Layer{{Type: LayerFlatten}}}
}

// Dropout Active in training mode only
func (f *LayerFactory) Dropout(probability float64) *Network {
	return &Network{Name: f.name + "_dropout", Layers: []*Layer{{Type: LayerDropout, Probability: probability}}}
}

// Concat Concatenates upsampled and bypass along channels axis of NCHW images.
// Batch and spatial dimensions must match. Result has C1+C2 channels.
func Concat(upsampled, bypass *gorgonia.Node) (*gorgonia.Node, error) {
	if upsampled == nil || bypass == nil {
		return nil, fmt.Errorf("Can't concatenate nil nodes")
	}
	a, b := upsampled.Shape(), bypass.Shape()
	if a.Dims() != 4 || b.Dims() != 4 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Can't concatenate %v and %v: both must be 4D", a, b))
	}
	for _, axis := range []int{0, 2, 3} {
		if a[axis] != b[axis] {
			return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Can't concatenate %v and %v: dimension %d differs", a, b, axis))
		}
	}
	cat, err := gorgonia.Concat(1, upsampled, bypass)
	if err != nil {
		return nil, errors.Wrap(err, "Can't concatenate along channels")
	}
	return cat, nil
}
