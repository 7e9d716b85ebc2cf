// Package session tracks where a user is in the scan flow and the most recent
// classification. Home -> Scan -> Result, with Scan -> Home and Result -> Scan
// on request.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Brownie44l1/plastic-classifier/internal/classifier"
)

type State string

const (
	StateHome   State = "home"
	StateScan   State = "scan"
	StateResult State = "result"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("session not found")
)

// Session is safe for concurrent use.
type Session struct {
	ID string

	mu        sync.RWMutex
	state     State
	last      *classifier.Outcome
	updatedAt time.Time
}

func New() *Session {
	return &Session{ID: uuid.NewString(), state: StateHome, updatedAt: time.Now()}
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID        string              `json:"id"`
	State     State               `json:"state"`
	Last      *classifier.Outcome `json:"last_result,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{ID: s.ID, State: s.state, UpdatedAt: s.updatedAt}
	if s.last != nil {
		last := *s.last
		snap.Last = &last
	}
	return snap
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Last returns the most recent outcome, if any.
func (s *Session) Last() (classifier.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return classifier.Outcome{}, false
	}
	return *s.last, true
}

// StartScan moves Home -> Scan.
func (s *Session) StartScan() error {
	return s.transition(StateHome, StateScan)
}

// Back moves Scan -> Home.
func (s *Session) Back() error {
	return s.transition(StateScan, StateHome)
}

// ScanAgain moves Result -> Scan.
func (s *Session) ScanAgain() error {
	return s.transition(StateResult, StateScan)
}

// Complete records a finished classification and moves Scan -> Result. The
// previous result, if any, is replaced.
func (s *Session) Complete(out classifier.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateScan {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", s.state, StateResult)
	}
	s.last = &out
	s.state = StateResult
	s.updatedAt = time.Now()
	return nil
}

func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", s.state, to)
	}
	s.state = to
	s.updatedAt = time.Now()
	return nil
}
