package descargan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Network Ordered composition of layers (a block). Blocks are immutable once built;
// Fwd may be called several times and every call appends a new subgraph sharing the same learnables.
//
// Layers - simple sequence of layers
// out - alias to activated output of last layer of the latest Fwd call
//
type Network struct {
	Name   string
	Layers []*Layer
	out    *gorgonia.Node
}

// Stack Joins blocks into a single one preserving order of layers
func Stack(name string, blocks ...*Network) *Network {
	stacked := &Network{Name: name}
	for _, b := range blocks {
		if b == nil {
			continue
		}
		stacked.Layers = append(stacked.Layers, b.Layers...)
	}
	return stacked
}

// Out Returns reference to output node
func (net *Network) Out() *gorgonia.Node {
	return net.out
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			learnables = append(learnables, l.learnables()...)
		}
	}
	return learnables
}

// Norms Returns normalization states of the block
func (net *Network) Norms() []*BatchNorm {
	norms := []*BatchNorm{}
	for _, l := range net.Layers {
		if l != nil && l.Norm != nil {
			norms = append(norms, l.Norm)
		}
	}
	return norms
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
// training - whether batch statistics and dropout should be used
//
func (net *Network) Fwd(input *gorgonia.Node, training bool) (*gorgonia.Node, error) {
	networkName := "network"
	if net.Name != "" {
		networkName = net.Name
	}
	if len(net.Layers) == 0 {
		return nil, fmt.Errorf("[%s] Network must have one layer atleast", networkName)
	}
	if input == nil {
		return nil, fmt.Errorf("[%s] Input node is nil", networkName)
	}
	lastActivatedLayer := input
	for i, l := range net.Layers {
		if l == nil {
			return nil, fmt.Errorf("[%s] Network's layer #%d is nil", networkName, i)
		}
		// Feedforward input through i-th layer
		layerNonActivated, err := l.Fwd(lastActivatedLayer, training)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d (%s)] Can't feedforward input before activation", networkName, i, l.Type))
		}
		if layerNonActivated != lastActivatedLayer {
			gorgonia.WithName(fmt.Sprintf("%s_%d", networkName, i))(layerNonActivated)
		}
		activation := l.Activation
		if activation == nil {
			activation = NoActivation
		}
		// Activate i-th layer's output
		layerActivated, err := activation(layerNonActivated)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s] Can't apply activation function to non-activated output of layer #%d", networkName, i))
		}
		if layerActivated != layerNonActivated {
			gorgonia.WithName(fmt.Sprintf("%s_activated_%d", networkName, i))(layerActivated)
		}
		lastActivatedLayer = layerActivated
	}
	net.out = lastActivatedLayer
	return lastActivatedLayer, nil
}
