package descargan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// GeneratorNet U-Net generator conditioned on the image label.
//
// Encoder: down0..down3 with widths nf, 2nf, 4nf, 8nf (max-pooling before down1..down3).
// Decoder: up3 + skip(down2) -> conv5, up2 + skip(down1) -> conv6, up1.
// Output: one of two heads (ill / healthy) with tanh activation, chosen per batch by SelectBranch.
//
type GeneratorNet struct {
	illLabel int
	cfg      modelConfig
	graph    *gorgonia.ExprGraph
	factory  *LayerFactory

	kernelInit *Initializer
	biasInit   *Initializer

	down0, down1, down2, down3 *Network
	up3, up2, up1              *Network
	conv5, conv6               *Network
	headIll, headHealthy       *Network

	out    *gorgonia.Node
	branch Branch
	passes int
}

// NewGenerator Defines generator on the graph.
//
// illLabel - label value identifying the "diseased" condition
//
func NewGenerator(g *gorgonia.ExprGraph, illLabel int, opts ...Option) (*GeneratorNet, error) {
	if g == nil {
		return nil, fmt.Errorf("Generator needs a graph")
	}
	cfg, err := newModelConfig("generator", opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	net := &GeneratorNet{
		illLabel: illLabel,
		cfg:      cfg,
		graph:    g,
	}
	f := NewLayerFactory(g, cfg.name, cfg.dtype, cfg.batchNorm, net)
	net.factory = f

	nf := cfg.filters
	net.down0 = Stack(cfg.name+"_down0",
		f.Conv("down0_conv0", cfg.channels+numClasses, nf),
		f.Conv("down0_conv1", nf, nf),
	)
	net.down1 = Stack(cfg.name+"_down1",
		f.MaxPool(),
		f.Conv("down1_conv0", nf, nf*2),
		f.Conv("down1_conv1", nf*2, nf*2),
	)
	net.down2 = Stack(cfg.name+"_down2",
		f.MaxPool(),
		f.Conv("down2_conv0", nf*2, nf*4),
		f.Conv("down2_conv1", nf*4, nf*4),
	)
	net.down3 = Stack(cfg.name+"_down3",
		f.MaxPool(),
		f.Conv("down3_conv0", nf*4, nf*8),
		f.Conv("down3_conv1", nf*8, nf*8),
	)

	net.up3 = f.Deconv("up3", nf*8, nf*4, WithTransposed(cfg.transposed))
	net.conv5 = Stack(cfg.name+"_conv5",
		f.Conv("conv5_conv0", nf*8, nf*4),
		f.Conv("conv5_conv1", nf*4, nf*4),
	)
	net.up2 = f.Deconv("up2", nf*4, nf*2, WithTransposed(cfg.transposed))
	net.conv6 = Stack(cfg.name+"_conv6",
		f.Conv("conv6_conv0", nf*4, nf*2),
		f.Conv("conv6_conv1", nf*2, nf*2),
	)
	net.up1 = f.Deconv("up1", nf*2, nf, WithTransposed(cfg.transposed))

	net.headIll = Stack(cfg.name+"_conv7_ill",
		f.Conv("conv7_ill_conv0", nf, nf),
		f.Conv("conv7_ill_conv1", nf, cfg.channels, WithActivation(Tanh)),
	)
	net.headHealthy = Stack(cfg.name+"_conv7_healthy",
		f.Conv("conv7_healthy_conv0", nf, nf),
		f.Conv("conv7_healthy_conv1", nf, cfg.channels, WithActivation(Tanh)),
	)
	if err := f.Err(); err != nil {
		return nil, errors.Wrap(err, "[Generator] Can't define layers")
	}
	return net, nil
}

// KernelInitializer He normal, built on first request
func (net *GeneratorNet) KernelInitializer() *Initializer {
	if net.kernelInit == nil {
		net.kernelInit = HeNormal()
	}
	return net.kernelInit
}

// BiasInitializer Zeros, built on first request
func (net *GeneratorNet) BiasInitializer() *Initializer {
	if net.biasInit == nil {
		net.biasInit = Zeros()
	}
	return net.biasInit
}

// IllLabel Returns label value routed through the ill head
func (net *GeneratorNet) IllLabel() int {
	return net.illLabel
}

// Out Returns reference to output node of the latest Fwd call
func (net *GeneratorNet) Out() *gorgonia.Node {
	return net.out
}

// LastBranch Returns head the latest Fwd call was routed through
func (net *GeneratorNet) LastBranch() Branch {
	return net.branch
}

// Head Returns block of the given branch
func (net *GeneratorNet) Head(b Branch) *Network {
	if b == BranchIll {
		return net.headIll
	}
	return net.headHealthy
}

func (net *GeneratorNet) blocks() []*Network {
	return []*Network{
		net.down0, net.down1, net.down2, net.down3,
		net.up3, net.conv5, net.up2, net.conv6, net.up1,
		net.headIll, net.headHealthy,
	}
}

// Learnables Returns learnables nodes of every block, both heads included
func (net *GeneratorNet) Learnables() gorgonia.Nodes {
	learnables := gorgonia.Nodes{}
	for _, b := range net.blocks() {
		learnables = append(learnables, b.Learnables()...)
	}
	return learnables
}

// CommitStatistics Updates running statistics of every normalization layer from the latest VM run
func (net *GeneratorNet) CommitStatistics() error {
	for _, b := range net.blocks() {
		for _, bn := range b.Norms() {
			if err := bn.CommitStatistics(); err != nil {
				return errors.Wrap(err, "[Generator]")
			}
		}
	}
	return nil
}

// Fwd Initializates feedforward for provided images and labels
//
// input - (batch, height, width, channels) images; (batch, channels, height, width) with WithChannelsFirst()
// labels - one label per example; height and width must be divisible by 8
// training - batch statistics instead of running ones
//
// Output has the same shape as input.
//
func (net *GeneratorNet) Fwd(input *gorgonia.Node, labels []int, training bool) (*gorgonia.Node, error) {
	x, err := net.cfg.toInternalLayout(input, labels)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	pass := net.passes
	net.passes++

	shp := x.Shape()
	condition := gorgonia.NewTensor(net.graph, net.cfg.dtype, 4,
		gorgonia.WithShape(shp[0], numClasses, shp[2], shp[3]),
		gorgonia.WithName(fmt.Sprintf("%s_condition_%d", net.cfg.name, pass)),
		gorgonia.WithValue(ConditionDense(net.cfg.dtype, labels, shp[2], shp[3])),
	)
	conditioned, err := gorgonia.Concat(1, x, condition)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator] Can't concatenate image and condition")
	}

	input0, err := net.down0.Fwd(conditioned, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	input1, err := net.down1.Fwd(input0, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	input2, err := net.down2.Fwd(input1, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	input3, err := net.down3.Fwd(input2, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}

	upsampled3, err := net.up3.Fwd(input3, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	cat3, err := Concat(upsampled3, input2)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator] Can't concatenate skip connection of down2")
	}
	input5, err := net.conv5.Fwd(cat3, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	upsampled2, err := net.up2.Fwd(input5, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	cat2, err := Concat(upsampled2, input1)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator] Can't concatenate skip connection of down1")
	}
	input6, err := net.conv6.Fwd(cat2, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	upsampled1, err := net.up1.Fwd(input6, training)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}

	branch := SelectBranch(labels, net.illLabel)
	generated, err := net.Head(branch).Fwd(upsampled1, training)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("[Generator] Can't feedforward %s head", branch))
	}
	out, err := net.cfg.toPublicLayout(generated)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	gorgonia.WithName(fmt.Sprintf("%s_out_%d", net.cfg.name, pass))(out)
	net.out = out
	net.branch = branch
	return out, nil
}
