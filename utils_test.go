package descargan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestRandDense(t *testing.T) {
	normal, err := NormRandDense(tensor.Float32, 2, 3, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 4, 1}, normal.Shape())
	assert.Equal(t, tensor.Float32, normal.Dtype())

	uniform, err := UniformRandDense(tensor.Float64, 100)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float64, uniform.Dtype())
	for _, v := range uniform.Data().([]float64) {
		assert.True(t, v >= -1 && v < 1, "value out of range: %f", v)
	}

	_, err = NormRandDense(tensor.Int, 2, 2)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	dense := tensor.New(tensor.WithShape(2, 2), tensor.WithBacking([]float32{1, 2, 3, 4}))
	mean, std, err := Summarize(dense)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, mean, 1e-9)
	// sample standard deviation
	assert.InDelta(t, 1.2909944, std, 1e-6)

	single := tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{7}))
	mean, std, err = Summarize(single)
	require.NoError(t, err)
	assert.Equal(t, 7.0, mean)
	assert.Equal(t, 0.0, std)

	_, _, err = Summarize(nil)
	assert.Error(t, err)
}

func TestPlotImage(t *testing.T) {
	img, err := UniformRandDense(tensor.Float32, 2, 8, 6, 1)
	require.NoError(t, err)

	fname := filepath.Join(t.TempDir(), "sample.png")
	require.NoError(t, PlotImage(img, 1, 0, fname))
	info, err := os.Stat(fname)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)

	assert.Error(t, PlotImage(img, 2, 0, fname))
	assert.Error(t, PlotImage(img, 0, 1, fname))

	assert.Error(t, PlotImage(zeroHeightImage{img}, 0, 0, fname))

	flat := tensor.New(tensor.WithShape(4, 4), tensor.WithBacking(make([]float64, 16)))
	assert.Error(t, PlotImage(flat, 0, 0, fname))
}

// zeroHeightImage Reports (batch, 0, width, channels) shape
type zeroHeightImage struct {
	*tensor.Dense
}

func (img zeroHeightImage) Shape() tensor.Shape {
	shp := img.Dense.Shape().Clone()
	shp[1] = 0
	return shp
}
