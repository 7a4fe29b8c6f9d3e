package descargan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// OneHot Encodes labels with given depth. Labels out of [0, depth) give all-zero rows.
func OneHot(labels []int, depth int) [][]int {
	result := make([][]int, len(labels))
	for i, label := range labels {
		result[i] = make([]int, depth)
		if label >= 0 && label < depth {
			result[i][label] = 1
		}
	}
	return result
}

// ConditionDense One-hot labels tiled over spatial dimensions: (batch, 2, height, width)
func ConditionDense(dt tensor.Dtype, labels []int, height, width int) *tensor.Dense {
	plane := height * width
	encoded := OneHot(labels, numClasses)
	switch dt {
	case tensor.Float64:
		data := make([]float64, len(labels)*numClasses*plane)
		for b := range encoded {
			for c, v := range encoded[b] {
				if v == 0 {
					continue
				}
				offset := (b*numClasses + c) * plane
				for i := 0; i < plane; i++ {
					data[offset+i] = 1
				}
			}
		}
		return tensor.New(tensor.WithShape(len(labels), numClasses, height, width), tensor.WithBacking(data))
	default:
		data := make([]float32, len(labels)*numClasses*plane)
		for b := range encoded {
			for c, v := range encoded[b] {
				if v == 0 {
					continue
				}
				offset := (b*numClasses + c) * plane
				for i := 0; i < plane; i++ {
					data[offset+i] = 1
				}
			}
		}
		return tensor.New(tensor.WithShape(len(labels), numClasses, height, width), tensor.WithBacking(data))
	}
}

// LabelsFromTensor Converts a vector of integer (or integral float) labels into []int
func LabelsFromTensor(t tensor.Tensor) ([]int, error) {
	if t == nil {
		return nil, fmt.Errorf("Labels tensor is nil")
	}
	if t.Dims() > 1 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Labels must be a vector, but got shape %v", t.Shape()))
	}
	switch data := t.Data().(type) {
	case []int:
		labels := make([]int, len(data))
		copy(labels, data)
		return labels, nil
	case []int32:
		labels := make([]int, len(data))
		for i := range data {
			labels[i] = int(data[i])
		}
		return labels, nil
	case []int64:
		labels := make([]int, len(data))
		for i := range data {
			labels[i] = int(data[i])
		}
		return labels, nil
	case []float32:
		labels := make([]int, len(data))
		for i := range data {
			labels[i] = int(data[i])
		}
		return labels, nil
	case []float64:
		labels := make([]int, len(data))
		for i := range data {
			labels[i] = int(data[i])
		}
		return labels, nil
	case int:
		return []int{data}, nil
	case int32:
		return []int{int(data)}, nil
	case int64:
		return []int{int(data)}, nil
	case float32:
		return []int{int(data)}, nil
	case float64:
		return []int{int(data)}, nil
	default:
		return nil, fmt.Errorf("Labels of type %T are not supported", data)
	}
}

// toInternalLayout Validates image node and labels, returns image in NCHW layout
func (cfg modelConfig) toInternalLayout(input *gorgonia.Node, labels []int) (*gorgonia.Node, error) {
	if input == nil {
		return nil, fmt.Errorf("Input node is nil")
	}
	shp := input.Shape()
	if shp.Dims() != 4 {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Input must be 4D image batch, but got shape %v", shp))
	}
	if len(labels) != shp[0] {
		return nil, errors.Wrap(ErrLabelCount, fmt.Sprintf("got %d labels for batch of %d", len(labels), shp[0]))
	}
	channelAxis := 3
	if cfg.channelsFirst {
		channelAxis = 1
	}
	if shp[channelAxis] != cfg.channels {
		return nil, errors.Wrap(ErrShapeMismatch, fmt.Sprintf("Input must have %d channels, but got %d", cfg.channels, shp[channelAxis]))
	}
	if cfg.channelsFirst {
		return input, nil
	}
	nchw, err := gorgonia.Transpose(input, 0, 3, 1, 2)
	if err != nil {
		return nil, errors.Wrap(err, "Can't transpose input into (batch, channels, height, width)")
	}
	return nchw, nil
}

// toPublicLayout Inverse of toInternalLayout
func (cfg modelConfig) toPublicLayout(output *gorgonia.Node) (*gorgonia.Node, error) {
	if cfg.channelsFirst {
		return output, nil
	}
	nhwc, err := gorgonia.Transpose(output, 0, 2, 3, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't transpose output into (batch, height, width, channels)")
	}
	return nhwc, nil
}
