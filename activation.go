package descargan

import (
	"gorgonia.org/gorgonia"
)

// ActivationFunc Activation applied as the last step of a block. See gorgonia's api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error)

// NoActivation Identity. Used by the critic heads which produce raw scores.
func NoActivation(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error) {
	return a, nil
}

// Rectify ReLU
func Rectify(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error) {
	return gorgonia.Rectify(a)
}

func Tanh(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error) {
	return gorgonia.Tanh(a)
}

func Sigmoid(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error) {
	return gorgonia.Sigmoid(a)
}

// LeakyRectify Leaky ReLU. Default slope is 0.2
func LeakyRectify(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error) {
	for i := range opts {
		if opts[i].Alpha != 0 {
			return gorgonia.LeakyRelu(a, opts[i].Alpha)
		}
	}
	return gorgonia.LeakyRelu(a, 0.2)
}

func Softmax(a *gorgonia.Node, opts ...ActivationOptions) (*gorgonia.Node, error) {
	for i := range opts {
		// First i-th option with provided field 'Axis' would be considered for use.
		if len(opts[i].Axis) > 0 {
			return gorgonia.SoftMax(a, opts[i].Axis...)
		}
	}
	return gorgonia.SoftMax(a)
}

// ActivationOptions Struct for holding options for certain activation functions.
type ActivationOptions struct {
	Axis  []int
	Alpha float64
}
