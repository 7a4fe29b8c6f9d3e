package descargan

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

// NormRandDense Return reference to tensor.Dense of provided shape filled with normally distributed values
//
// dt - tensor.Float32 or tensor.Float64
// shape - e.g. (batch, height, width, channels)
//
func NormRandDense(dt tensor.Dtype, shape ...int) (*tensor.Dense, error) {
	return randDense(dt, rand.NormFloat64, shape...)
}

// UniformRandDense Return reference to tensor.Dense of provided shape filled with pseudo-random values in range [-1.0,1.0)
// which is the output range of the generator
func UniformRandDense(dt tensor.Dtype, shape ...int) (*tensor.Dense, error) {
	return randDense(dt, func() float64 { return 2*rand.Float64() - 1 }, shape...)
}

func randDense(dt tensor.Dtype, gen func() float64, shape ...int) (*tensor.Dense, error) {
	n := tensor.Shape(shape).TotalSize()
	switch dt {
	case tensor.Float64:
		data := make([]float64, n)
		for i := range data {
			data[i] = gen()
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
	case tensor.Float32:
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(gen())
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
	default:
		return nil, fmt.Errorf("Dtype %v is not supported", dt)
	}
}

// Float64s Copies data of float tensor into []float64
func Float64s(t tensor.Tensor) ([]float64, error) {
	if t == nil {
		return nil, fmt.Errorf("Tensor is nil")
	}
	switch data := t.Data().(type) {
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out, nil
	case []float32:
		out := make([]float64, len(data))
		for i := range data {
			out[i] = float64(data[i])
		}
		return out, nil
	case float64:
		return []float64{data}, nil
	case float32:
		return []float64{float64(data)}, nil
	default:
		return nil, fmt.Errorf("Data of type %T is not supported", data)
	}
}

// Summarize Returns mean and standard deviation of every element of tensor
func Summarize(t tensor.Tensor) (mean, std float64, err error) {
	data, err := Float64s(t)
	if err != nil {
		return 0, 0, errors.Wrap(err, "Can't extract values")
	}
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("Tensor is empty")
	}
	mean, std = stat.MeanStdDev(data, nil)
	if len(data) == 1 {
		std = 0
	}
	return mean, std, nil
}

// imageGrid Adapter of (height, width) values to plotter.GridXYZ. Row 0 is drawn on top
type imageGrid struct {
	values [][]float64
}

func (g imageGrid) Dims() (c, r int)   { return len(g.values[0]), len(g.values) }
func (g imageGrid) Z(c, r int) float64 { return g.values[len(g.values)-1-r][c] }
func (g imageGrid) X(c int) float64    { return float64(c) }
func (g imageGrid) Y(r int) float64    { return float64(r) }

// PlotImage Plot heatmap of a single image channel
//
// t - (batch, height, width, channels) tensor, e.g. value of Generator output
// sample, channel - which image of batch and which channel to draw
//
func PlotImage(t tensor.Tensor, sample, channel int, fname string) error {
	if t.Dims() != 4 {
		return fmt.Errorf("Image batch must have four dimensions, but got %d", t.Dims())
	}
	shp := t.Shape()
	if sample < 0 || sample >= shp[0] {
		return fmt.Errorf("Sample %d is out of batch of %d", sample, shp[0])
	}
	if channel < 0 || channel >= shp[3] {
		return fmt.Errorf("Channel %d is out of %d channels", channel, shp[3])
	}
	height, width := shp[1], shp[2]
	if height == 0 || width == 0 {
		return fmt.Errorf("Image must have non-zero height and width, but got %dx%d", height, width)
	}
	values := make([][]float64, height)
	for y := 0; y < height; y++ {
		values[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			v, err := t.At(sample, y, x, channel)
			if err != nil {
				return errors.Wrap(err, "Can't select pixel value")
			}
			switch pix := v.(type) {
			case float64:
				values[y][x] = pix
			case float32:
				values[y][x] = float64(pix)
			default:
				return fmt.Errorf("Pixel of type %T is not supported", v)
			}
		}
	}
	heatmap := plotter.NewHeatMap(imageGrid{values: values}, palette.Heat(12, 1))
	p := plot.New()
	p.Title.Text = fmt.Sprintf("sample #%d, channel #%d", sample, channel)
	p.HideAxes()
	p.Add(heatmap)
	// Save the plot to a PNG file.
	if err := p.Save(4*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
