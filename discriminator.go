package descargan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

const (
	classifierUnits   = 64
	classifierDropout = 0.1
)

// DiscriminatorNet Shared convolutional encoder with two label-conditioned critic heads
// and an auxiliary ill/healthy classifier.
//
// encoder - nine conv blocks and five max-poolings, widths nf -> 16nf
// criticIll, criticHealthy - two conv blocks and 1x1 convolution giving single-channel score map
// classifierConv - two conv blocks, max-pooling and flatten
// classifierDense - linear(64) + ReLU + dropout(0.1) + linear(2). Built on first Fwd since
// its input width depends on spatial size of images.
//
type DiscriminatorNet struct {
	illLabel int
	cfg      modelConfig
	graph    *gorgonia.ExprGraph
	factory  *LayerFactory

	kernelInit *Initializer
	biasInit   *Initializer

	encoder                  *Network
	criticIll, criticHealthy *Network
	classifierConv           *Network
	classifierDense          *Network
	classifierFeatures       int

	scores *gorgonia.Node
	logits *gorgonia.Node
	branch Branch
}

// NewDiscriminator Defines discriminator on the graph.
//
// illLabel - label value identifying the "diseased" condition
//
func NewDiscriminator(g *gorgonia.ExprGraph, illLabel int, opts ...Option) (*DiscriminatorNet, error) {
	if g == nil {
		return nil, fmt.Errorf("Discriminator needs a graph")
	}
	cfg, err := newModelConfig("discriminator", opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	net := &DiscriminatorNet{
		illLabel: illLabel,
		cfg:      cfg,
		graph:    g,
	}
	f := NewLayerFactory(g, cfg.name, cfg.dtype, cfg.batchNorm, net)
	net.factory = f

	nf := cfg.filters
	net.encoder = Stack(cfg.name+"_encoder",
		f.Conv("encoder_conv0", cfg.channels, nf),
		f.MaxPool(),
		f.Conv("encoder_conv1", nf, nf*2),
		f.MaxPool(),
		f.Conv("encoder_conv2", nf*2, nf*4),
		f.Conv("encoder_conv3", nf*4, nf*4),
		f.MaxPool(),
		f.Conv("encoder_conv4", nf*4, nf*8),
		f.Conv("encoder_conv5", nf*8, nf*8),
		f.MaxPool(),
		f.Conv("encoder_conv6", nf*8, nf*8),
		f.Conv("encoder_conv7", nf*8, nf*8),
		f.MaxPool(),
		f.Conv("encoder_conv8", nf*8, nf*16),
	)
	net.criticIll = Stack(cfg.name+"_critic_ill",
		f.Conv("critic_ill_conv0", nf*16, nf*16),
		f.Conv("critic_ill_conv1", nf*16, nf*16),
		f.Conv("critic_ill_conv2", nf*16, 1, WithKernelSize(1), WithActivation(NoActivation)),
	)
	net.criticHealthy = Stack(cfg.name+"_critic_healthy",
		f.Conv("critic_healthy_conv0", nf*16, nf*16),
		f.Conv("critic_healthy_conv1", nf*16, nf*16),
		f.Conv("critic_healthy_conv2", nf*16, 1, WithKernelSize(1), WithActivation(NoActivation)),
	)
	net.classifierConv = Stack(cfg.name+"_classifier_conv",
		f.Conv("classifier_conv0", nf*16, nf*16),
		f.Conv("classifier_conv1", nf*16, nf*16),
		f.MaxPool(),
		f.Flatten(),
	)
	if err := f.Err(); err != nil {
		return nil, errors.Wrap(err, "[Discriminator] Can't define layers")
	}
	return net, nil
}

// KernelInitializer Glorot (Xavier) normal, built on first request
func (net *DiscriminatorNet) KernelInitializer() *Initializer {
	if net.kernelInit == nil {
		net.kernelInit = GlorotNormal()
	}
	return net.kernelInit
}

// BiasInitializer Zeros, built on first request
func (net *DiscriminatorNet) BiasInitializer() *Initializer {
	if net.biasInit == nil {
		net.biasInit = Zeros()
	}
	return net.biasInit
}

// IllLabel Returns label value routed through the ill critic head
func (net *DiscriminatorNet) IllLabel() int {
	return net.illLabel
}

// ScoresOut Returns reference to critic score map of the latest Fwd call
func (net *DiscriminatorNet) ScoresOut() *gorgonia.Node {
	return net.scores
}

// LogitsOut Returns reference to classification logits of the latest Fwd call
func (net *DiscriminatorNet) LogitsOut() *gorgonia.Node {
	return net.logits
}

// LastBranch Returns critic head the latest Fwd call was routed through
func (net *DiscriminatorNet) LastBranch() Branch {
	return net.branch
}

// Critic Returns critic block of the given branch
func (net *DiscriminatorNet) Critic(b Branch) *Network {
	if b == BranchIll {
		return net.criticIll
	}
	return net.criticHealthy
}

func (net *DiscriminatorNet) blocks() []*Network {
	blocks := []*Network{net.encoder, net.criticIll, net.criticHealthy, net.classifierConv}
	if net.classifierDense != nil {
		blocks = append(blocks, net.classifierDense)
	}
	return blocks
}

// Learnables Returns learnables nodes. Classifier's linear layers are included after the first Fwd call
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	learnables := gorgonia.Nodes{}
	for _, b := range net.blocks() {
		learnables = append(learnables, b.Learnables()...)
	}
	return learnables
}

// CommitStatistics Updates running statistics of every normalization layer from the latest VM run
func (net *DiscriminatorNet) CommitStatistics() error {
	for _, b := range net.blocks() {
		for _, bn := range b.Norms() {
			if err := bn.CommitStatistics(); err != nil {
				return errors.Wrap(err, "[Discriminator]")
			}
		}
	}
	return nil
}

// classifierHead Builds linear part of the classifier once the flattened width is known
func (net *DiscriminatorNet) classifierHead(features int) (*Network, error) {
	if net.classifierDense != nil {
		if features != net.classifierFeatures {
			return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("classifier was built for %d features, but got %d", net.classifierFeatures, features))
		}
		return net.classifierDense, nil
	}
	f := net.factory
	dense := Stack(net.cfg.name+"_classifier_dense",
		f.Linear("classifier_linear0", features, classifierUnits, Rectify),
		f.Dropout(classifierDropout),
		f.Linear("classifier_linear1", classifierUnits, numClasses, NoActivation),
	)
	if err := f.Err(); err != nil {
		return nil, err
	}
	net.classifierDense = dense
	net.classifierFeatures = features
	return dense, nil
}

// Fwd Initializates feedforward for provided images and labels
//
// input - (batch, height, width, channels) images; (batch, channels, height, width) with WithChannelsFirst()
// labels - one label per example
// training - batch statistics instead of running ones, dropout enabled
//
// Returns critic score map (spatial dimensions divided by 32, single channel) and (batch, 2) logits.
//
func (net *DiscriminatorNet) Fwd(input *gorgonia.Node, labels []int, training bool) (*gorgonia.Node, *gorgonia.Node, error) {
	x, err := net.cfg.toInternalLayout(input, labels)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Discriminator]")
	}
	hidden, err := net.encoder.Fwd(x, training)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Discriminator]")
	}

	branch := SelectBranch(labels, net.illLabel)
	critic, err := net.Critic(branch).Fwd(hidden, training)
	if err != nil {
		return nil, nil, errors.Wrap(err, fmt.Sprintf("[Discriminator] Can't feedforward %s critic", branch))
	}
	scores, err := net.cfg.toPublicLayout(critic)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Discriminator]")
	}

	flat, err := net.classifierConv.Fwd(hidden, training)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Discriminator]")
	}
	dense, err := net.classifierHead(flat.Shape()[1])
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Discriminator] Can't prepare classifier")
	}
	logits, err := dense.Fwd(flat, training)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Discriminator]")
	}

	net.scores = scores
	net.logits = logits
	net.branch = branch
	return scores, logits, nil
}
