// Package classifier turns a model's probability vector into a decision:
// either a recognized plastic type or an unrecognized input.
package classifier

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/plastic-classifier/internal/model"
)

// DefaultThreshold is the minimum confidence for a prediction to be shown as
// a plastic type. It has not been calibrated.
const DefaultThreshold float32 = 0.60

var (
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")
	ErrInvalidOutput    = errors.New("model returned an invalid probability vector")
)

// Model is what Classify needs from a loaded classifier.
type Model interface {
	Predict(t model.Tensor) (model.ProbabilityVector, error)
	Labels() []model.Label
}

type Status string

const (
	StatusRecognized   Status = "recognized"
	StatusUnrecognized Status = "unrecognized"
)

// Outcome is the interpreted result of one inference. For unrecognized
// outcomes Label holds the best guess, which must not be presented as an
// answer.
type Outcome struct {
	Status        Status                  `json:"status"`
	Label         model.Label             `json:"label"`
	Confidence    float32                 `json:"confidence"`
	Threshold     float32                 `json:"threshold"`
	Probabilities map[model.Label]float32 `json:"probabilities"`
}

// Actionable reports whether the label may be shown to the user.
func (o Outcome) Actionable() bool {
	return o.Status == StatusRecognized
}

func ValidateThreshold(threshold float32) error {
	if math32.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "got %v", threshold)
	}
	return nil
}

// Classify runs one inference and applies the confidence threshold. A
// confidence equal to the threshold is recognized.
func Classify(t model.Tensor, m Model, threshold float32) (Outcome, error) {
	if m == nil {
		return Outcome{}, model.ErrModelUnavailable
	}
	if err := ValidateThreshold(threshold); err != nil {
		return Outcome{}, err
	}

	probs, err := m.Predict(t)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "prediction failed")
	}

	labels := m.Labels()
	idx, confidence, err := argmax(probs, len(labels))
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Status:        StatusRecognized,
		Label:         labels[idx],
		Confidence:    confidence,
		Threshold:     threshold,
		Probabilities: make(map[model.Label]float32, len(labels)),
	}
	for i, l := range labels {
		out.Probabilities[l] = probs[i]
	}
	if confidence < threshold {
		out.Status = StatusUnrecognized
	}
	return out, nil
}

// argmax returns the first index holding the largest value.
func argmax(probs model.ProbabilityVector, want int) (int, float32, error) {
	if want == 0 || len(probs) != want {
		return 0, 0, errors.Wrapf(ErrInvalidOutput, "got %d values for %d labels", len(probs), want)
	}

	idx := 0
	for i, p := range probs {
		if math32.IsNaN(p) || math32.IsInf(p, 0) || p < 0 || p > 1 {
			return 0, 0, errors.Wrapf(ErrInvalidOutput, "value %v at index %d", p, i)
		}
		if p > probs[idx] {
			idx = i
		}
	}
	return idx, probs[idx], nil
}
