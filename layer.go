package descargan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Single primitive operation of a block: Weight+Bias+ActivationFunc combo for
// learnable layers, or a parameter-free reshaping/sampling operation.
//
// Images are in NCHW layout inside of layers.
//
type Layer struct {
	WeightNode *gorgonia.Node
	BiasNode   *gorgonia.Node
	Activation ActivationFunc
	Type       LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int

	// Scale Upsampling factor (LayerUpsample) or number of sub-pixel phases per axis (LayerSubPixel)
	Scale int
	// Probability Drop probability for LayerDropout
	Probability float64
	// Norm Normalization state for LayerBatchNorm
	Norm *BatchNorm
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerMaxpool
	LayerUpsample
	LayerSubPixel
	LayerBatchNorm
	LayerDropout
)

func (lt LayerType) String() string {
	switch lt {
	case LayerLinear:
		return "linear"
	case LayerFlatten:
		return "flatten"
	case LayerConvolutional:
		return "conv2d"
	case LayerMaxpool:
		return "maxpool2d"
	case LayerUpsample:
		return "upsample2d"
	case LayerSubPixel:
		return "conv2d_transpose"
	case LayerBatchNorm:
		return "batchnorm"
	case LayerDropout:
		return "dropout"
	default:
		return fmt.Sprintf("layer(%d)", uint16(lt))
	}
}

var (
	allowedNoWeights = []LayerType{LayerMaxpool, LayerFlatten, LayerUpsample, LayerBatchNorm, LayerDropout}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Fwd Feedforward input through the layer. Activation is not applied here: see Network.Fwd
func (l *Layer) Fwd(input *gorgonia.Node, training bool) (*gorgonia.Node, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, fmt.Errorf("Layer of type '%s' has nil weight node", l.Type)
	}
	if err := l.checkInputDepth(input); err != nil {
		return nil, err
	}
	switch l.Type {
	case LayerLinear:
		return l.fwdLinear(input)
	case LayerConvolutional:
		conv, err := gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
		return l.addChannelBias(conv)
	case LayerSubPixel:
		return l.fwdSubPixel(input)
	case LayerUpsample:
		up, err := gorgonia.Upsample2D(input, l.Scale)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't upsample[2D] input with scale %d", l.Scale))
		}
		return up, nil
	case LayerMaxpool:
		pooled, err := gorgonia.MaxPool2D(input, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride)
		if err != nil {
			return nil, errors.Wrap(err, "Can't maxpool[2D] input by kernel")
		}
		return pooled, nil
	case LayerFlatten:
		shp := input.Shape()
		if shp.Dims() < 2 {
			return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Can't flatten input of shape %v", shp))
		}
		flat, err := gorgonia.Reshape(input, tensor.Shape{shp[0], shp.TotalSize() / shp[0]})
		if err != nil {
			return nil, errors.Wrap(err, "Can't flatten input")
		}
		return flat, nil
	case LayerBatchNorm:
		if l.Norm == nil {
			return nil, fmt.Errorf("Batch normalization layer has no state")
		}
		return l.Norm.Fwd(input, training)
	case LayerDropout:
		if !training || l.Probability <= 0 {
			return input, nil
		}
		dropped, err := gorgonia.Dropout(input, l.Probability)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't apply dropout with probability %f", l.Probability))
		}
		return dropped, nil
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", l.Type)
	}
}

// checkInputDepth Channels (or features) of input must match the depth weights were declared for
func (l *Layer) checkInputDepth(input *gorgonia.Node) error {
	if input == nil {
		return fmt.Errorf("Layer of type '%s' got nil input", l.Type)
	}
	if l.WeightNode == nil {
		return nil
	}
	shp := input.Shape()
	if shp.Dims() < 2 {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Layer of type '%s' got input of shape %v", l.Type, shp))
	}
	declared := l.WeightNode.Shape()[1]
	if shp[1] != declared {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Layer of type '%s' expects input depth %d, but got %d", l.Type, declared, shp[1]))
	}
	return nil
}

// fwdLinear Input is (batch, features), weights are (units, features)
func (l *Layer) fwdLinear(input *gorgonia.Node) (*gorgonia.Node, error) {
	tOp, err := gorgonia.Transpose(l.WeightNode)
	if err != nil {
		return nil, errors.Wrap(err, "Can't transpose weights")
	}
	nonActivated, err := gorgonia.Mul(input, tOp)
	if err != nil {
		return nil, errors.Wrap(err, "Can't multiply input and weights")
	}
	if l.BiasNode == nil {
		return nonActivated, nil
	}
	if input.Shape()[0] < 2 {
		nonActivated, err = gorgonia.Add(nonActivated, l.BiasNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add bias to non-activated output")
		}
		return nonActivated, nil
	}
	nonActivated, err = gorgonia.BroadcastAdd(nonActivated, l.BiasNode, nil, []byte{0})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't add [in broadcast term with batch_size = %d] bias to non-activated output", input.Shape()[0]))
	}
	return nonActivated, nil
}

// addChannelBias Bias is (1, channels, 1, 1)
func (l *Layer) addChannelBias(conv *gorgonia.Node) (*gorgonia.Node, error) {
	if l.BiasNode == nil {
		return conv, nil
	}
	biased, err := gorgonia.BroadcastAdd(conv, l.BiasNode, nil, []byte{0, 2, 3})
	if err != nil {
		return nil, errors.Wrap(err, "Can't add bias to convolution output")
	}
	return biased, nil
}

// fwdSubPixel Transposed convolution expressed as a convolution producing Scale*Scale
// phases per output channel followed by depth-to-space rearrangement:
// (b, c*s*s, h, w) -> (b, c, s, s, h, w) -> (b, c, h, s, w, s) -> (b, c, h*s, w*s)
func (l *Layer) fwdSubPixel(input *gorgonia.Node) (*gorgonia.Node, error) {
	s := l.Scale
	if s < 1 {
		return nil, fmt.Errorf("Sub-pixel scale %d does not make sense", s)
	}
	conv, err := gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
	if err != nil {
		return nil, errors.Wrap(err, "Can't convolve[2D] input by sub-pixel kernel")
	}
	conv, err = l.addChannelBias(conv)
	if err != nil {
		return nil, err
	}
	if s == 1 {
		return conv, nil
	}
	shp := conv.Shape()
	b, cs, h, w := shp[0], shp[1], shp[2], shp[3]
	if cs%(s*s) != 0 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Can't split %d channels into %dx%d phases", cs, s, s))
	}
	c := cs / (s * s)
	phases, err := gorgonia.Reshape(conv, tensor.Shape{b, c, s, s, h, w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't split channels into phases")
	}
	interleaved, err := gorgonia.Transpose(phases, 0, 1, 4, 2, 5, 3)
	if err != nil {
		return nil, errors.Wrap(err, "Can't interleave phases")
	}
	out, err := gorgonia.Reshape(interleaved, tensor.Shape{b, c, h * s, w * s})
	if err != nil {
		return nil, errors.Wrap(err, "Can't merge phases into spatial dimensions")
	}
	return out, nil
}

// learnables Returns learnable nodes of the layer
func (l *Layer) learnables() gorgonia.Nodes {
	nodes := make(gorgonia.Nodes, 0, 2)
	if l.WeightNode != nil {
		nodes = append(nodes, l.WeightNode)
	}
	if l.BiasNode != nil {
		nodes = append(nodes, l.BiasNode)
	}
	if l.Norm != nil {
		nodes = append(nodes, l.Norm.Gamma, l.Norm.Beta)
	}
	return nodes
}
