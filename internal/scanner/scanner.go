// Package scanner wires the classification pipeline together: model store,
// preprocessing, decision and the recycling catalog.
package scanner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plastic-classifier/internal/classifier"
	"github.com/Brownie44l1/plastic-classifier/internal/metrics"
	"github.com/Brownie44l1/plastic-classifier/internal/model"
	"github.com/Brownie44l1/plastic-classifier/internal/preprocess"
	"github.com/Brownie44l1/plastic-classifier/internal/recycling"
)

// ModelSource hands out the loaded model. *model.Store satisfies it.
type ModelSource interface {
	Load() (model.Predictor, error)
	Status() model.Status
}

type Scanner struct {
	models    ModelSource
	catalog   *recycling.Catalog
	threshold float32
	maxPixels int
	logger    *zap.Logger
}

type Config struct {
	Threshold float32
	// MaxImagePixels caps the declared size of uploads. Zero means
	// preprocess.DefaultMaxPixels.
	MaxImagePixels int
}

func New(models ModelSource, catalog *recycling.Catalog, logger *zap.Logger, cfg Config) (*Scanner, error) {
	if err := classifier.ValidateThreshold(cfg.Threshold); err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = recycling.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxImagePixels < 0 {
		return nil, errors.Errorf("max image pixels must not be negative, got %d", cfg.MaxImagePixels)
	}
	maxPixels := cfg.MaxImagePixels
	if maxPixels == 0 {
		maxPixels = preprocess.DefaultMaxPixels
	}
	return &Scanner{models: models, catalog: catalog, threshold: cfg.Threshold, maxPixels: maxPixels, logger: logger}, nil
}

// Result is an outcome together with what the user should be told about it.
type Result struct {
	classifier.Outcome
	Description *recycling.Entry `json:"description,omitempty"`
	Message     string           `json:"message"`
}

func (s *Scanner) Threshold() float32 { return s.threshold }

func (s *Scanner) ModelStatus() model.Status { return s.models.Status() }

func (s *Scanner) Catalog() *recycling.Catalog { return s.catalog }

// Labels is the class order of the loaded model, or the default order while
// no model is ready. It never triggers a load.
func (s *Scanner) Labels() []model.Label {
	if s.models.Status() == model.StatusReady {
		if m, err := s.models.Load(); err == nil {
			return m.Labels()
		}
	}
	return model.DefaultLabels
}

// Scan classifies an encoded JPEG or PNG image. The model is checked before
// any decoding work so an unavailable model short-circuits.
func (s *Scanner) Scan(ctx context.Context, data []byte) (classifier.Outcome, error) {
	m, err := s.load()
	if err != nil {
		return classifier.Outcome{}, err
	}

	start := time.Now()
	tensor, err := preprocess.NormalizeBytesLimit(data, s.maxPixels)
	metrics.StageDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScanFailuresTotal.WithLabelValues("decode").Inc()
		s.logger.Info("rejected upload", zap.Int("bytes", len(data)), zap.NamedError("cause", errors.Cause(err)))
		return classifier.Outcome{}, err
	}

	return s.classify(ctx, tensor, m)
}

// ScanTensor classifies an already normalized tensor.
func (s *Scanner) ScanTensor(ctx context.Context, t model.Tensor) (classifier.Outcome, error) {
	m, err := s.load()
	if err != nil {
		return classifier.Outcome{}, err
	}
	if err := t.Validate(); err != nil {
		metrics.ScanFailuresTotal.WithLabelValues("tensor").Inc()
		return classifier.Outcome{}, errors.Wrap(ErrInvalidTensor, err.Error())
	}
	return s.classify(ctx, t, m)
}

// ErrInvalidTensor is returned by ScanTensor for a tensor of the wrong shape
// or value range.
var ErrInvalidTensor = errors.New("invalid tensor")

// Describe attaches the recycling notes for recognized outcomes and the
// low-confidence warning otherwise.
func (s *Scanner) Describe(out classifier.Outcome) Result {
	res := Result{Outcome: out}
	if out.Actionable() {
		entry := s.catalog.Describe(out.Label)
		res.Description = &entry
		res.Message = "Plastic type: " + string(out.Label)
		return res
	}
	res.Message = "Image not recognized: the model is not confident this is a known plastic type. Please try another image."
	return res
}

func (s *Scanner) load() (model.Predictor, error) {
	m, err := s.models.Load()
	if err != nil {
		metrics.ScanFailuresTotal.WithLabelValues("model_unavailable").Inc()
		return nil, err
	}
	return m, nil
}

func (s *Scanner) classify(ctx context.Context, t model.Tensor, m model.Predictor) (classifier.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return classifier.Outcome{}, err
	}

	start := time.Now()
	out, err := classifier.Classify(t, m, s.threshold)
	metrics.StageDuration.WithLabelValues("inference").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ScanFailuresTotal.WithLabelValues("inference").Inc()
		s.logger.Error("classification failed", zap.Error(err))
		return classifier.Outcome{}, err
	}

	metrics.ClassificationsTotal.WithLabelValues(string(out.Status)).Inc()
	metrics.ConfidenceObserved.Observe(float64(out.Confidence))
	if out.Actionable() {
		metrics.RecognizedLabelsTotal.WithLabelValues(string(out.Label)).Inc()
	}

	s.logger.Info("classified image",
		zap.String("status", string(out.Status)),
		zap.String("label", string(out.Label)),
		zap.Float32("confidence", out.Confidence),
		zap.Duration("inference", time.Since(start)),
	)
	return out, nil
}
