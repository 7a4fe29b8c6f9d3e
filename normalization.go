package descargan

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const defaultEpsilon = 1e-3

// BatchNorm Batch normalization over axis 1 (channels for NCHW images, features for matrices).
//
// Gamma, Beta - learnable scale and shift, shaped (1, C) or (1, C, 1, 1)
// RunningMean, RunningVar - moving statistics used in inference mode
//
// Statistics live here instead of inside of a gorgonia op, so every forward pass
// built for this block (each with its own batch size) shares them.
//
type BatchNorm struct {
	Name     string
	Channels int
	Momentum float64
	Epsilon  float64

	Gamma *gorgonia.Node
	Beta  *gorgonia.Node

	RunningMean *tensor.Dense
	RunningVar  *tensor.Dense

	dims    int
	dtype   tensor.Dtype
	graph   *gorgonia.ExprGraph
	passes  int
	batches []*batchStats
}

// batchStats Values are filled by the VM on each run
type batchStats struct {
	mean     gorgonia.Value
	variance gorgonia.Value
}

// NewBatchNorm Creates normalization state for inputs with given number of dimensions (2 or 4)
func NewBatchNorm(g *gorgonia.ExprGraph, name string, dt tensor.Dtype, dims, channels int, momentum float64) (*BatchNorm, error) {
	if dims != 2 && dims != 4 {
		return nil, fmt.Errorf("Batch normalization supports 2D and 4D inputs only, but got %dD", dims)
	}
	if channels < 1 {
		return nil, fmt.Errorf("Batch normalization needs one channel atleast, but got %d", channels)
	}
	shp := statShape(dims, channels)
	bn := &BatchNorm{
		Name:        name,
		Channels:    channels,
		Momentum:    momentum,
		Epsilon:     defaultEpsilon,
		Gamma:       gorgonia.NewTensor(g, dt, dims, gorgonia.WithShape(shp...), gorgonia.WithName(name+"_gamma"), gorgonia.WithInit(gorgonia.Ones())),
		Beta:        gorgonia.NewTensor(g, dt, dims, gorgonia.WithShape(shp...), gorgonia.WithName(name+"_beta"), gorgonia.WithInit(gorgonia.Zeroes())),
		RunningMean: tensor.New(tensor.Of(dt), tensor.WithShape(shp...)),
		RunningVar:  tensor.Ones(dt, shp...),
		dims:        dims,
		dtype:       dt,
		graph:       g,
	}
	return bn, nil
}

// statShape (1, C) for matrices, (1, C, 1, 1) for images
func statShape(dims, channels int) tensor.Shape {
	shp := make(tensor.Shape, dims)
	for i := range shp {
		shp[i] = 1
	}
	shp[1] = channels
	return shp
}

// broadcastPattern Every axis except of channels one
func broadcastPattern(dims int) []byte {
	pattern := make([]byte, 0, dims-1)
	for i := 0; i < dims; i++ {
		if i != 1 {
			pattern = append(pattern, byte(i))
		}
	}
	return pattern
}

// Fwd Normalizes input. In training mode batch statistics are used and registered
// for CommitStatistics; otherwise running statistics are bound into the graph.
func (bn *BatchNorm) Fwd(input *gorgonia.Node, training bool) (*gorgonia.Node, error) {
	shp := input.Shape()
	if shp.Dims() != bn.dims {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("[%s] expects %dD input, but got %v", bn.Name, bn.dims, shp))
	}
	if shp[1] != bn.Channels {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("[%s] expects %d channels, but got %d", bn.Name, bn.Channels, shp[1]))
	}
	pattern := broadcastPattern(bn.dims)
	pass := bn.passes
	bn.passes++

	var mean, variance, centered *gorgonia.Node
	var err error
	if training {
		batchMean, err := reduceMeanExceptChannels(input)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't compute batch mean", bn.Name))
		}
		if mean, err = gorgonia.Reshape(batchMean, statShape(bn.dims, bn.Channels)); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't reshape batch mean", bn.Name))
		}
		if centered, err = gorgonia.BroadcastSub(input, mean, nil, pattern); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't center input", bn.Name))
		}
		sqr, err := gorgonia.Square(centered)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't do (x^2)", bn.Name))
		}
		batchVar, err := reduceMeanExceptChannels(sqr)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't compute batch variance", bn.Name))
		}
		if variance, err = gorgonia.Reshape(batchVar, statShape(bn.dims, bn.Channels)); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't reshape batch variance", bn.Name))
		}
		stats := &batchStats{}
		gorgonia.Read(batchMean, &stats.mean)
		gorgonia.Read(batchVar, &stats.variance)
		bn.batches = append(bn.batches, stats)
	} else {
		shp := statShape(bn.dims, bn.Channels)
		mean = gorgonia.NewTensor(bn.graph, bn.dtype, bn.dims, gorgonia.WithShape(shp...), gorgonia.WithName(fmt.Sprintf("%s_running_mean_%d", bn.Name, pass)), gorgonia.WithValue(bn.RunningMean))
		variance = gorgonia.NewTensor(bn.graph, bn.dtype, bn.dims, gorgonia.WithShape(shp...), gorgonia.WithName(fmt.Sprintf("%s_running_var_%d", bn.Name, pass)), gorgonia.WithValue(bn.RunningVar))
		if centered, err = gorgonia.BroadcastSub(input, mean, nil, pattern); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't center input", bn.Name))
		}
	}

	eps := gorgonia.NewScalar(bn.graph, bn.dtype, gorgonia.WithValue(dtypeValue(bn.dtype, bn.Epsilon)))
	shifted, err := gorgonia.Add(variance, eps)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't do (var+eps)", bn.Name))
	}
	std, err := gorgonia.Sqrt(shifted)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't do √x", bn.Name))
	}
	normed, err := gorgonia.BroadcastHadamardDiv(centered, std, nil, pattern)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't do (x/std)", bn.Name))
	}
	scaled, err := gorgonia.BroadcastHadamardProd(normed, bn.Gamma, nil, pattern)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't do (x.*gamma)", bn.Name))
	}
	out, err := gorgonia.BroadcastAdd(scaled, bn.Beta, nil, pattern)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't do (x+beta)", bn.Name))
	}
	return out, nil
}

// reduceMeanExceptChannels Mean over every axis but 1, from the last one to the first one. Result is (C)
func reduceMeanExceptChannels(input *gorgonia.Node) (*gorgonia.Node, error) {
	reduced := input
	var err error
	for axis := input.Dims() - 1; axis >= 0; axis-- {
		if axis == 1 {
			continue
		}
		if reduced, err = gorgonia.Mean(reduced, axis); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't do mean along axis %d", axis))
		}
	}
	return reduced, nil
}

// CommitStatistics Folds batch statistics computed by the last VM run into running ones:
// running = momentum*running + (1-momentum)*batch
// Passes which haven't been run since the previous commit are skipped.
func (bn *BatchNorm) CommitStatistics() error {
	for i, stats := range bn.batches {
		if stats.mean == nil || stats.variance == nil {
			continue
		}
		if err := foldMoving(bn.RunningMean, stats.mean, bn.Momentum); err != nil {
			return errors.Wrap(err, fmt.Sprintf("[%s] Can't update running mean from pass #%d", bn.Name, i))
		}
		if err := foldMoving(bn.RunningVar, stats.variance, bn.Momentum); err != nil {
			return errors.Wrap(err, fmt.Sprintf("[%s] Can't update running variance from pass #%d", bn.Name, i))
		}
		stats.mean = nil
		stats.variance = nil
	}
	return nil
}

// Pending Number of registered training passes with statistics not yet committed
func (bn *BatchNorm) Pending() int {
	n := 0
	for _, stats := range bn.batches {
		if stats.mean != nil && stats.variance != nil {
			n++
		}
	}
	return n
}

func foldMoving(running *tensor.Dense, batch gorgonia.Value, momentum float64) error {
	batchT, ok := batch.(tensor.Tensor)
	if !ok {
		return fmt.Errorf("Batch statistics must be a tensor, but got %T", batch)
	}
	switch runData := running.Data().(type) {
	case []float64:
		batchData, ok := batchT.Data().([]float64)
		if !ok || len(batchData) != len(runData) {
			return errors.Wrap(ErrShapeMismatch, "Batch statistics do not match running statistics")
		}
		floats.Scale(momentum, runData)
		floats.AddScaled(runData, 1-momentum, batchData)
	case []float32:
		batchData, ok := batchT.Data().([]float32)
		if !ok || len(batchData) != len(runData) {
			return errors.Wrap(ErrShapeMismatch, "Batch statistics do not match running statistics")
		}
		m := float32(momentum)
		for i := range runData {
			runData[i] = m*runData[i] + (1-m)*batchData[i]
		}
	default:
		return fmt.Errorf("Dtype %v is not supported for running statistics", running.Dtype())
	}
	return nil
}

// dtypeValue Go value of given dtype for scalar nodes. tensor.Float32 -> float32, tensor.Float64 -> float64
func dtypeValue(dt tensor.Dtype, v float64) interface{} {
	if dt == tensor.Float32 {
		return float32(v)
	}
	return v
}
