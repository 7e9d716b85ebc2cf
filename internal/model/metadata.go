package model

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Activation describes what the model's output layer emits.
type Activation string

const (
	// ActivationSoftmax means the outputs are already probabilities.
	ActivationSoftmax Activation = "softmax"
	// ActivationLogits means the outputs are raw scores and need a softmax.
	ActivationLogits Activation = "logits"
)

// Metadata is the companion file shipped next to the model artifact. It pins
// the class order the model was trained with.
type Metadata struct {
	InputShape  []int64    `json:"input_shape"`
	OutputShape []int64    `json:"output_shape"`
	Classes     []Label    `json:"classes"`
	ImageSize   int        `json:"image_size"`
	InputName   string     `json:"input_name"`
	OutputName  string     `json:"output_name"`
	Activation  Activation `json:"output_activation"`
}

// DefaultMetadata describes the stock Keras export: NHWC input, softmax output.
func DefaultMetadata() Metadata {
	classes := make([]Label, len(DefaultLabels))
	copy(classes, DefaultLabels)
	return Metadata{
		InputShape:  []int64{1, ImageSize, ImageSize, Channels},
		OutputShape: []int64{1, int64(len(DefaultLabels))},
		Classes:     classes,
		ImageSize:   ImageSize,
		InputName:   "input",
		OutputName:  "output",
		Activation:  ActivationSoftmax,
	}
}

// LoadMetadata reads and validates a metadata file. Fields left out of the
// file keep their DefaultMetadata values.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to read metadata")
	}

	meta := DefaultMetadata()
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, errors.Wrap(err, "failed to parse metadata")
	}
	if len(meta.Classes) == 0 {
		meta.Classes = append([]Label(nil), DefaultLabels...)
	}

	if err := meta.Validate(); err != nil {
		return Metadata{}, errors.Wrapf(err, "invalid metadata %s", path)
	}
	return meta, nil
}

// Validate fails fast on any mismatch between the label list and the model's
// declared input and output dimensions.
func (m Metadata) Validate() error {
	if len(m.Classes) != len(DefaultLabels) {
		return errors.Errorf("expected %d classes, got %d", len(DefaultLabels), len(m.Classes))
	}
	seen := make(map[Label]bool, len(m.Classes))
	for _, c := range m.Classes {
		if !c.Known() {
			return errors.Errorf("unknown class %q", c)
		}
		if seen[c] {
			return errors.Errorf("duplicate class %q", c)
		}
		seen[c] = true
	}

	if len(m.OutputShape) == 0 {
		return errors.New("output_shape is empty")
	}
	if out := m.OutputShape[len(m.OutputShape)-1]; out != int64(len(m.Classes)) {
		return errors.Errorf("model emits %d scores but %d classes are listed", out, len(m.Classes))
	}

	if len(m.InputShape) != len(InputShape) {
		return errors.Errorf("input_shape %v, want %v", m.InputShape, InputShape)
	}
	for i := range InputShape {
		if m.InputShape[i] != InputShape[i] {
			return errors.Errorf("input_shape %v, want %v", m.InputShape, InputShape)
		}
	}
	if m.ImageSize != ImageSize {
		return errors.Errorf("image_size %d, want %d", m.ImageSize, ImageSize)
	}

	switch m.Activation {
	case ActivationSoftmax, ActivationLogits:
	default:
		return errors.Errorf("unsupported output_activation %q", m.Activation)
	}
	return nil
}
