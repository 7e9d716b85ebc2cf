package model

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrModelUnavailable is returned by Store.Load once the artifact has failed
// to load. Classification stays disabled for the life of the process.
var ErrModelUnavailable = errors.New("model unavailable")

// Predictor is the capability the rest of the service needs from a loaded model.
type Predictor interface {
	Predict(t Tensor) (ProbabilityVector, error)
	Labels() []Label
}

// LoadFunc produces a Predictor. The returned closer, if non-nil, is called by
// Store.Close.
type LoadFunc func() (Predictor, func(), error)

// Status is the lifecycle state of a Store.
type Status string

const (
	StatusNotLoaded   Status = "not_loaded"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
	StatusClosed      Status = "closed"
)

// Store owns the single model instance. Load runs the loader at most once and
// memoizes the outcome, including a failure.
type Store struct {
	load LoadFunc

	mu        sync.Mutex
	predictor Predictor
	closer    func()
	err       error
	status    Status
}

func NewStore(load LoadFunc) *Store {
	return &Store{load: load, status: StatusNotLoaded}
}

// NewONNXStore returns a Store that lazily builds a Server from the given paths.
func NewONNXStore(modelPath, metadataPath string, opts ...ServerOption) *Store {
	return NewStore(func() (Predictor, func(), error) {
		s, err := NewServer(modelPath, metadataPath, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	})
}

// Load returns the shared Predictor, loading it on first use.
func (s *Store) Load() (Predictor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusReady:
		return s.predictor, nil
	case StatusUnavailable:
		return nil, s.err
	case StatusClosed:
		return nil, errors.Wrap(ErrModelUnavailable, "store closed")
	}

	p, closer, err := s.load()
	if err == nil && p == nil {
		err = errors.New("loader returned no model")
	}
	if err != nil {
		s.status = StatusUnavailable
		s.err = &unavailableError{cause: err}
		return nil, s.err
	}

	s.predictor = p
	s.closer = closer
	s.status = StatusReady
	return p, nil
}

func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close releases a loaded model. Load fails after Close.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closer != nil {
		s.closer()
		s.closer = nil
	}
	s.predictor = nil
	s.status = StatusClosed
}

// unavailableError keeps the load failure as context while matching
// ErrModelUnavailable under errors.Is.
type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return ErrModelUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}

func (e *unavailableError) Unwrap() error {
	return e.cause
}
