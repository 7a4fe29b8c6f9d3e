package descargan

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// runGraph Executes every node of the graph once
func runGraph(t *testing.T, g *gorgonia.ExprGraph) {
	t.Helper()
	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()
	require.NoError(t, tm.RunAll())
}

// letRandom Binds random values to input node
func letRandom(t *testing.T, n *gorgonia.Node) {
	t.Helper()
	values, err := NormRandDense(n.Dtype(), n.Shape()...)
	require.NoError(t, err)
	require.NoError(t, gorgonia.Let(n, values))
}

func readValues(t *testing.T, v gorgonia.Value) []float64 {
	t.Helper()
	require.NotNil(t, v)
	data, err := Float64s(v.(tensor.Tensor))
	require.NoError(t, err)
	return data
}
