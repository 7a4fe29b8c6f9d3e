package descargan

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func layerTypes(net *Network) []LayerType {
	types := make([]LayerType, len(net.Layers))
	for i, l := range net.Layers {
		types[i] = l.Type
	}
	return types
}

func TestConvBlock(t *testing.T) {
	g := gorgonia.NewGraph()

	normed := NewLayerFactory(g, "normed", tensor.Float32, true, &defaultPolicy{})
	block := normed.Conv("c", 3, 8)
	require.NoError(t, normed.Err())
	assert.Equal(t, []LayerType{LayerConvolutional, LayerBatchNorm}, layerTypes(block))
	assert.Nil(t, block.Layers[0].BiasNode, "normalized convolution has no bias")
	assert.Equal(t, tensor.Shape{8, 3, 3, 3}, block.Layers[0].WeightNode.Shape())
	assert.Equal(t, []int{1, 1}, block.Layers[0].Padding)
	assert.NotNil(t, block.Layers[1].Activation)
	assert.InDelta(t, 0.01, block.Layers[1].Norm.Momentum, 1e-12)

	plain := NewLayerFactory(g, "plain", tensor.Float32, false, &defaultPolicy{})
	block = plain.Conv("c", 3, 8, WithKernelSize(1))
	require.NoError(t, plain.Err())
	assert.Equal(t, []LayerType{LayerConvolutional}, layerTypes(block))
	assert.NotNil(t, block.Layers[0].BiasNode)
	assert.Equal(t, []int{0, 0}, block.Layers[0].Padding)
	assert.Len(t, block.Learnables(), 2)
}

func TestConvBlockEvenKernel(t *testing.T) {
	g := gorgonia.NewGraph()
	f := NewLayerFactory(g, "f", tensor.Float32, true, &defaultPolicy{})
	assert.Nil(t, f.Conv("c", 3, 8, WithKernelSize(4)))
	assert.Error(t, f.Err())
	// Error sticks
	assert.Nil(t, f.Conv("c2", 3, 8))
}

func TestDeconvBlockIsAlwaysNormalized(t *testing.T) {
	g := gorgonia.NewGraph()
	f := NewLayerFactory(g, "f", tensor.Float32, false, &defaultPolicy{})

	up := f.Deconv("up", 8, 4)
	require.NoError(t, f.Err())
	assert.Equal(t, []LayerType{LayerUpsample, LayerConvolutional, LayerBatchNorm}, layerTypes(up))

	tr := f.Deconv("tr", 8, 4, WithTransposed(true))
	require.NoError(t, f.Err())
	assert.Equal(t, []LayerType{LayerSubPixel, LayerBatchNorm}, layerTypes(tr))
	// kernel 4, stride 2 => 3x3 taps for each of 2x2 phases
	assert.Equal(t, tensor.Shape{16, 8, 3, 3}, tr.Layers[0].WeightNode.Shape())
}

func TestDeconvDoublesSpatialDims(t *testing.T) {
	for _, transposed := range []bool{false, true} {
		g := gorgonia.NewGraph()
		f := NewLayerFactory(g, "f", tensor.Float64, true, &defaultPolicy{})
		block := f.Deconv("up", 3, 2, WithTransposed(transposed))
		require.NoError(t, f.Err())

		x := gorgonia.NewTensor(g, tensor.Float64, 4, gorgonia.WithShape(2, 3, 4, 5), gorgonia.WithName("x"))
		out, err := block.Fwd(x, false)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, 2, 8, 10}, out.Shape(), "transposed=%v", transposed)

		var outVal gorgonia.Value
		gorgonia.Read(out, &outVal)
		letRandom(t, x)
		runGraph(t, g)
		assert.Len(t, readValues(t, outVal), 2*2*8*10)
	}
}

func TestDenseBlock(t *testing.T) {
	g := gorgonia.NewGraph()
	f := NewLayerFactory(g, "f", tensor.Float64, false, &defaultPolicy{})
	block := f.Dense("fc", 6, 3)
	require.NoError(t, f.Err())
	assert.Equal(t, []LayerType{LayerLinear, LayerBatchNorm}, layerTypes(block))
	assert.Equal(t, tensor.Shape{3, 6}, block.Layers[0].WeightNode.Shape())

	x := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(4, 6), gorgonia.WithName("x"))
	out, err := block.Fwd(x, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 3}, out.Shape())
}

func TestConcat(t *testing.T) {
	g := gorgonia.NewGraph()
	a := gorgonia.NewTensor(g, tensor.Float32, 4, gorgonia.WithShape(2, 3, 8, 8), gorgonia.WithName("a"))
	b := gorgonia.NewTensor(g, tensor.Float32, 4, gorgonia.WithShape(2, 5, 8, 8), gorgonia.WithName("b"))
	small := gorgonia.NewTensor(g, tensor.Float32, 4, gorgonia.WithShape(2, 5, 4, 4), gorgonia.WithName("small"))

	cat, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 8, 8, 8}, cat.Shape())

	_, err = Concat(a, small)
	require.Error(t, err)
	assert.Equal(t, ErrShapeMismatch, errors.Cause(err))

	_, err = Concat(a, nil)
	assert.Error(t, err)
}

func TestConvRejectsWrongDepth(t *testing.T) {
	g := gorgonia.NewGraph()
	f := NewLayerFactory(g, "f", tensor.Float32, true, &defaultPolicy{})
	block := f.Conv("c", 3, 4)
	require.NoError(t, f.Err())

	x := gorgonia.NewTensor(g, tensor.Float32, 4, gorgonia.WithShape(1, 2, 8, 8), gorgonia.WithName("x"))
	_, err := block.Fwd(x, false)
	require.Error(t, err)
	assert.Equal(t, ErrShapeMismatch, errors.Cause(err))
}

func TestSubPixelKernel(t *testing.T) {
	assert.Equal(t, 3, subPixelKernel(4, 2))
	assert.Equal(t, 3, subPixelKernel(3, 1))
	assert.Equal(t, 1, subPixelKernel(2, 2))
	assert.Equal(t, 3, subPixelKernel(5, 2))
}
