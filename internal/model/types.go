package model

import (
	"github.com/pkg/errors"
)

// Label is one of the seven plastic resin categories the classifier knows.
type Label string

const (
	LabelPET   Label = "PET"
	LabelHDPE  Label = "HDPE"
	LabelPVC   Label = "PVC"
	LabelLDPE  Label = "LDPE"
	LabelPP    Label = "PP"
	LabelPS    Label = "PS"
	LabelOther Label = "Other"
)

// DefaultLabels is the training-time class order of the shipped model.
var DefaultLabels = []Label{LabelPET, LabelHDPE, LabelPVC, LabelLDPE, LabelPP, LabelPS, LabelOther}

// Known reports whether l is one of the seven resin labels.
func (l Label) Known() bool {
	for _, k := range DefaultLabels {
		if l == k {
			return true
		}
	}
	return false
}

const (
	// ImageSize is the square side length the model was trained on.
	ImageSize = 224
	// Channels is the number of color channels fed to the model (RGB).
	Channels = 3
	// TensorLen is the number of float32 values in a normalized batch of one.
	TensorLen = ImageSize * ImageSize * Channels
)

// InputShape is the NHWC shape of a normalized batch of one image.
var InputShape = []int64{1, ImageSize, ImageSize, Channels}

// Tensor is a normalized NHWC batch of one image. Values are row-major,
// indexed as ((y*ImageSize)+x)*Channels + c, each within [0, 1].
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor wraps data as a 1x224x224x3 tensor.
func NewTensor(data []float32) Tensor {
	shape := make([]int64, len(InputShape))
	copy(shape, InputShape)
	return Tensor{Shape: shape, Data: data}
}

// Validate checks the shape and value range invariants.
func (t Tensor) Validate() error {
	if len(t.Shape) != len(InputShape) {
		return errors.Errorf("tensor rank %d, want %d", len(t.Shape), len(InputShape))
	}
	for i, dim := range InputShape {
		if t.Shape[i] != dim {
			return errors.Errorf("tensor shape %v, want %v", t.Shape, InputShape)
		}
	}
	if len(t.Data) != TensorLen {
		return errors.Errorf("expected %d values, got %d", TensorLen, len(t.Data))
	}
	for i, v := range t.Data {
		if !(v >= 0 && v <= 1) {
			return errors.Errorf("value %v at index %d outside [0, 1]", v, i)
		}
	}
	return nil
}

// ProbabilityVector is the model output, one probability per label in
// training-time order.
type ProbabilityVector []float32

type PredictionRequest struct {
	Image []float32 `json:"image"`
}
