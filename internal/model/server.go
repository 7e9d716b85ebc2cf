package model

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Server runs the plastic classifier through onnxruntime. The input and output
// tensors are bound to the session once, so Predict calls are serialized.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

type serverOptions struct {
	sharedLibrary string
}

type ServerOption func(*serverOptions)

// WithSharedLibrary points onnxruntime_go at a specific libonnxruntime build.
func WithSharedLibrary(path string) ServerOption {
	return func(o *serverOptions) { o.sharedLibrary = path }
}

func NewServer(modelPath, metadataPath string, opts ...ServerOption) (*Server, error) {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if o.sharedLibrary != "" {
		ort.SetSharedLibraryPath(o.sharedLibrary)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize ONNX environment")
	}

	s := &Server{Metadata: metadata}

	s.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to create input tensor")
	}

	s.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to create output tensor")
	}

	s.session, err = ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.outputTensor},
		nil)
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to create ONNX session")
	}

	return s, nil
}

// Labels returns the class order declared by the metadata file.
func (s *Server) Labels() []Label {
	return s.Metadata.Classes
}

// Predict runs one inference and returns the probability per class.
func (s *Server) Predict(t Tensor) (ProbabilityVector, error) {
	if err := t.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid input tensor")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), t.Data)

	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	raw := s.outputTensor.GetData()
	out := make(ProbabilityVector, len(raw))
	copy(out, raw)

	if s.Metadata.Activation == ActivationLogits {
		return Softmax(out), nil
	}
	return out, nil
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	ort.DestroyEnvironment()
}

// Softmax turns raw scores into probabilities, shifting by the max score to
// keep Exp in range.
func Softmax(scores []float32) ProbabilityVector {
	out := make(ProbabilityVector, len(scores))
	if len(scores) == 0 {
		return out
	}

	maxScore := scores[0]
	for _, v := range scores[1:] {
		if v > maxScore {
			maxScore = v
		}
	}

	var sum float32
	for i, v := range scores {
		out[i] = math32.Exp(v - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
