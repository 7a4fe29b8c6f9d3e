package descargan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestStack(t *testing.T) {
	g := gorgonia.NewGraph()
	f := NewLayerFactory(g, "stack", tensor.Float64, true, &defaultPolicy{})
	net := Stack("stacked",
		f.Conv("conv0", 1, 2),
		nil,
		f.MaxPool(),
		f.Flatten(),
	)
	require.NoError(t, f.Err())
	// conv, batch norm, maxpool, flatten
	assert.Len(t, net.Layers, 4)
	assert.Len(t, net.Norms(), 1)
	assert.Len(t, net.Learnables(), 3)

	x := gorgonia.NewTensor(g, tensor.Float64, 4, gorgonia.WithShape(2, 1, 4, 4), gorgonia.WithName("x"))
	out, err := net.Fwd(x, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 8}, out.Shape())
	assert.Same(t, out, net.Out())
}

func TestNetworkFwdErrors(t *testing.T) {
	g := gorgonia.NewGraph()
	x := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(2, 3), gorgonia.WithName("x"))

	_, err := (&Network{Name: "empty"}).Fwd(x, false)
	assert.Error(t, err)

	_, err = (&Network{Layers: []*Layer{nil}}).Fwd(x, false)
	assert.Error(t, err)

	f := NewLayerFactory(g, "errors", tensor.Float64, false, &defaultPolicy{})
	_, err = f.Linear("linear", 3, 4, Rectify).Fwd(nil, false)
	assert.Error(t, err)
}

func TestDropoutOnlyInTraining(t *testing.T) {
	g := gorgonia.NewGraph()
	f := NewLayerFactory(g, "dropout", tensor.Float64, false, &defaultPolicy{})
	drop := f.Dropout(0.5)
	x := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(2, 3), gorgonia.WithName("x"))

	inference, err := drop.Fwd(x, false)
	require.NoError(t, err)
	assert.Same(t, x, inference)

	training, err := drop.Fwd(x, true)
	require.NoError(t, err)
	assert.NotSame(t, x, training)
	assert.Equal(t, x.Shape(), training.Shape())
}

func TestLinearFwd(t *testing.T) {
	g := gorgonia.NewGraph()
	f := NewLayerFactory(g, "linear", tensor.Float64, false, &defaultPolicy{})
	single := f.Linear("single", 3, 4, Rectify)
	batched := f.Linear("batched", 3, 4, NoActivation)
	require.NoError(t, f.Err())

	one := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(1, 3), gorgonia.WithName("one"))
	many := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(5, 3), gorgonia.WithName("many"))

	out, err := single.Fwd(one, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4}, out.Shape())

	out, err = batched.Fwd(many, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 4}, out.Shape())

	letRandom(t, one)
	letRandom(t, many)
	runGraph(t, g)
}
