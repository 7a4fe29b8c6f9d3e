package descargan

import (
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Initializer Named weight initialization function
type Initializer struct {
	Name string
	Fn   gorgonia.InitWFn
}

// InitializerPolicy Capability each concrete model supplies to the LayerFactory.
// Implementations are expected to build initializers lazily and hand out the same
// instance on every call.
type InitializerPolicy interface {
	KernelInitializer() *Initializer
	BiasInitializer() *Initializer
}

// HeNormal Variance scaling with ReLU gain: std = sqrt(2/fan_in)
func HeNormal() *Initializer {
	return &Initializer{Name: "he_normal", Fn: heNormal(math.Sqrt2)}
}

// heNormal gorgonia.HeN handles tensor.Float64 only. Other dtypes sample gaussian with
// std = gain*sqrt(1/fan_in), fan_in being the product of every dimension but the first one
func heNormal(gain float64) gorgonia.InitWFn {
	float64Fn := gorgonia.HeN(gain)
	return func(dt tensor.Dtype, s ...int) interface{} {
		if dt == tensor.Float64 {
			return float64Fn(dt, s...)
		}
		fanIn := 1
		if len(s) > 1 {
			for _, d := range s[1:] {
				fanIn *= d
			}
		}
		return gorgonia.Gaussian(0, gain/math.Sqrt(float64(fanIn)))(dt, s...)
	}
}

// GlorotNormal Xavier normal: std = sqrt(2/(fan_in+fan_out))
func GlorotNormal() *Initializer {
	return &Initializer{Name: "glorot_normal", Fn: gorgonia.GlorotN(1.0)}
}

// GlorotUniform Default kernel initialization for layers which are not covered by a policy
func GlorotUniform() *Initializer {
	return &Initializer{Name: "glorot_uniform", Fn: gorgonia.GlorotU(1.0)}
}

func Zeros() *Initializer {
	return &Initializer{Name: "zeros", Fn: gorgonia.Zeroes()}
}

// defaultPolicy Framework defaults: Glorot uniform kernels, zero biases
type defaultPolicy struct {
	kernel *Initializer
	bias   *Initializer
}

func (p *defaultPolicy) KernelInitializer() *Initializer {
	if p.kernel == nil {
		p.kernel = GlorotUniform()
	}
	return p.kernel
}

func (p *defaultPolicy) BiasInitializer() *Initializer {
	if p.bias == nil {
		p.bias = Zeros()
	}
	return p.bias
}
