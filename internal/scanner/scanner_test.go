package scanner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Brownie44l1/plastic-classifier/internal/classifier"
	"github.com/Brownie44l1/plastic-classifier/internal/metrics"
	"github.com/Brownie44l1/plastic-classifier/internal/model"
	"github.com/Brownie44l1/plastic-classifier/internal/preprocess"
	"github.com/Brownie44l1/plastic-classifier/internal/recycling"
)

type fakePredictor struct {
	probs  model.ProbabilityVector
	labels []model.Label
	calls  int
}

func (f *fakePredictor) Predict(t model.Tensor) (model.ProbabilityVector, error) {
	f.calls++
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return f.probs, nil
}

func (f *fakePredictor) Labels() []model.Label {
	if f.labels != nil {
		return f.labels
	}
	return model.DefaultLabels
}

func newStore(p model.Predictor, err error) *model.Store {
	return model.NewStore(func() (model.Predictor, func(), error) {
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	})
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 512, 512))
	for y := 0; y < 512; y++ {
		for x := 0; x < 512; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x / 2), G: 180, B: uint8(y / 2), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newScanner(t *testing.T, src ModelSource) *Scanner {
	t.Helper()
	s, err := New(src, recycling.Default(), zaptest.NewLogger(t), Config{Threshold: classifier.DefaultThreshold})
	require.NoError(t, err)
	return s
}

func TestScanRecognized(t *testing.T) {
	p := &fakePredictor{probs: model.ProbabilityVector{0.91, 0.02, 0.01, 0.01, 0.02, 0.01, 0.02}}
	s := newScanner(t, newStore(p, nil))
	before := testutil.ToFloat64(metrics.ClassificationsTotal.WithLabelValues("recognized"))

	out, err := s.Scan(context.Background(), pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, classifier.StatusRecognized, out.Status)
	assert.Equal(t, model.LabelPET, out.Label)
	assert.Equal(t, 1, p.calls)

	after := testutil.ToFloat64(metrics.ClassificationsTotal.WithLabelValues("recognized"))
	assert.Equal(t, before+1, after)

	res := s.Describe(out)
	require.NotNil(t, res.Description)
	assert.Equal(t, 1, res.Description.Code)
	assert.Contains(t, res.Message, "PET")
}

func TestScanUnrecognized(t *testing.T) {
	p := &fakePredictor{probs: model.ProbabilityVector{0.14, 0.13, 0.18, 0.14, 0.14, 0.13, 0.14}}
	s := newScanner(t, newStore(p, nil))

	out, err := s.Scan(context.Background(), pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, classifier.StatusUnrecognized, out.Status)

	res := s.Describe(out)
	assert.Nil(t, res.Description)
	assert.Contains(t, res.Message, "not recognized")
}

func TestScanDecodeErrorSkipsInference(t *testing.T) {
	p := &fakePredictor{probs: model.ProbabilityVector{1, 0, 0, 0, 0, 0, 0}}
	s := newScanner(t, newStore(p, nil))

	_, err := s.Scan(context.Background(), []byte("GIF89a but not really"))
	require.Error(t, err)
	assert.Equal(t, 0, p.calls)
}

func TestScanModelUnavailable(t *testing.T) {
	s := newScanner(t, newStore(nil, errors.New("file not found")))

	_, err := s.Scan(context.Background(), pngBytes(t))
	assert.True(t, errors.Is(err, model.ErrModelUnavailable))
	assert.Equal(t, model.StatusUnavailable, s.ModelStatus())

	_, err = s.ScanTensor(context.Background(), model.NewTensor(make([]float32, model.TensorLen)))
	assert.True(t, errors.Is(err, model.ErrModelUnavailable))
}

func TestScanTensor(t *testing.T) {
	p := &fakePredictor{probs: model.ProbabilityVector{0, 0.8, 0.2, 0, 0, 0, 0}}
	s := newScanner(t, newStore(p, nil))

	out, err := s.ScanTensor(context.Background(), model.NewTensor(make([]float32, model.TensorLen)))
	require.NoError(t, err)
	assert.Equal(t, model.LabelHDPE, out.Label)

	_, err = s.ScanTensor(context.Background(), model.NewTensor(make([]float32, 3)))
	assert.True(t, errors.Is(err, ErrInvalidTensor))
}

func TestScanCancelledContext(t *testing.T) {
	p := &fakePredictor{probs: model.ProbabilityVector{1, 0, 0, 0, 0, 0, 0}}
	s := newScanner(t, newStore(p, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx, pngBytes(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.calls)
}

func TestNewRejectsBadThreshold(t *testing.T) {
	_, err := New(newStore(nil, nil), nil, nil, Config{Threshold: 1.5})
	assert.True(t, errors.Is(err, classifier.ErrInvalidThreshold))
}

func TestNewRejectsNegativePixelCap(t *testing.T) {
	_, err := New(newStore(nil, nil), nil, nil, Config{Threshold: 0.5, MaxImagePixels: -1})
	assert.Error(t, err)
}

func TestScanRejectsImageOverPixelCap(t *testing.T) {
	p := &fakePredictor{probs: model.ProbabilityVector{1, 0, 0, 0, 0, 0, 0}}
	s, err := New(newStore(p, nil), nil, zaptest.NewLogger(t), Config{Threshold: 0.5, MaxImagePixels: 256 * 256})
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), pngBytes(t))
	assert.True(t, errors.Is(err, preprocess.ErrDecode))
	assert.Equal(t, 0, p.calls)
}

func TestLabelsFollowLoadedModel(t *testing.T) {
	permuted := []model.Label{
		model.LabelHDPE, model.LabelPET, model.LabelPVC, model.LabelLDPE,
		model.LabelPP, model.LabelPS, model.LabelOther,
	}
	p := &fakePredictor{probs: model.ProbabilityVector{0.9, 0.1, 0, 0, 0, 0, 0}, labels: permuted}
	s := newScanner(t, newStore(p, nil))

	assert.Equal(t, model.DefaultLabels, s.Labels())
	assert.Equal(t, model.StatusNotLoaded, s.ModelStatus())

	out, err := s.Scan(context.Background(), pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, model.LabelHDPE, out.Label)
	assert.Equal(t, permuted, s.Labels())
}

func TestLabelsDefaultWhenUnavailable(t *testing.T) {
	s := newScanner(t, newStore(nil, errors.New("file not found")))
	_, err := s.Scan(context.Background(), pngBytes(t))
	require.Error(t, err)
	assert.Equal(t, model.DefaultLabels, s.Labels())
}
