package descargan

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestBatchNormTraining(t *testing.T) {
	g := gorgonia.NewGraph()
	bn, err := NewBatchNorm(g, "bn", tensor.Float64, 2, 2, 0.01)
	require.NoError(t, err)

	x := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(4, 2), gorgonia.WithName("x"))
	out, err := bn.Fwd(x, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 2}, out.Shape())

	var outVal gorgonia.Value
	gorgonia.Read(out, &outVal)
	require.NoError(t, gorgonia.Let(x, tensor.New(tensor.WithShape(4, 2), tensor.WithBacking([]float64{1, 2, 3, 4, 5, 6, 7, 8}))))
	runGraph(t, g)

	normed := readValues(t, outVal)
	for c := 0; c < 2; c++ {
		sum := 0.0
		for b := 0; b < 4; b++ {
			sum += normed[b*2+c]
		}
		assert.InDelta(t, 0, sum/4, 1e-9, "channel %d must be centered", c)
	}
	// (1 - 4) / sqrt(5 + eps)
	assert.InDelta(t, -1.3412, normed[0], 1e-3)

	assert.Equal(t, 1, bn.Pending())
	require.NoError(t, bn.CommitStatistics())
	assert.Equal(t, 0, bn.Pending())
	assert.InDeltaSlice(t, []float64{3.96, 4.95}, bn.RunningMean.Data().([]float64), 1e-9)
	assert.InDeltaSlice(t, []float64{4.96, 4.96}, bn.RunningVar.Data().([]float64), 1e-9)

	// Nothing new to fold until the graph is run again
	require.NoError(t, bn.CommitStatistics())
	assert.InDeltaSlice(t, []float64{3.96, 4.95}, bn.RunningMean.Data().([]float64), 1e-9)
}

func TestBatchNormInferenceUsesRunningStatistics(t *testing.T) {
	g := gorgonia.NewGraph()
	bn, err := NewBatchNorm(g, "bn", tensor.Float32, 4, 1, 0.01)
	require.NoError(t, err)
	bn.Epsilon = 0
	bn.RunningMean.Data().([]float32)[0] = 2
	bn.RunningVar.Data().([]float32)[0] = 4

	x := gorgonia.NewTensor(g, tensor.Float32, 4, gorgonia.WithShape(1, 1, 1, 2), gorgonia.WithName("x"))
	out, err := bn.Fwd(x, false)
	require.NoError(t, err)

	var outVal gorgonia.Value
	gorgonia.Read(out, &outVal)
	require.NoError(t, gorgonia.Let(x, tensor.New(tensor.WithShape(1, 1, 1, 2), tensor.WithBacking([]float32{4, 0}))))
	runGraph(t, g)

	assert.InDeltaSlice(t, []float64{1, -1}, readValues(t, outVal), 1e-6)
	assert.Equal(t, 0, bn.Pending())
}

func TestBatchNormRejectsWrongInput(t *testing.T) {
	g := gorgonia.NewGraph()
	bn, err := NewBatchNorm(g, "bn", tensor.Float32, 4, 3, 0.01)
	require.NoError(t, err)

	x := gorgonia.NewTensor(g, tensor.Float32, 4, gorgonia.WithShape(1, 2, 4, 4), gorgonia.WithName("x"))
	_, err = bn.Fwd(x, true)
	assert.Equal(t, ErrShapeMismatch, errors.Cause(err))

	m := gorgonia.NewMatrix(g, tensor.Float32, gorgonia.WithShape(2, 3), gorgonia.WithName("m"))
	_, err = bn.Fwd(m, true)
	assert.Equal(t, ErrShapeMismatch, errors.Cause(err))

	_, err = NewBatchNorm(g, "bn3", tensor.Float32, 3, 3, 0.01)
	assert.Error(t, err)
}

func TestBroadcastPattern(t *testing.T) {
	assert.Equal(t, []byte{0}, broadcastPattern(2))
	assert.Equal(t, []byte{0, 2, 3}, broadcastPattern(4))
	assert.Equal(t, tensor.Shape{1, 5, 1, 1}, statShape(4, 5))
}
