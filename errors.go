package descargan

import (
	"github.com/pkg/errors"
)

var (
	// ErrShapeMismatch Channel or spatial dimensions of tensors disagree
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrLabelCount Number of labels differs from batch size
	ErrLabelCount = errors.New("number of labels does not match batch size")
)
