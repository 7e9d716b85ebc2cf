package session

import (
	"sync"
	"time"
)

// Manager holds the sessions of the HTTP shell in memory.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewManager keeps sessions until they have been idle for ttl. A zero ttl
// keeps them until deleted.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{sessions: make(map[string]*Session), ttl: ttl}
}

func (m *Manager) Create() *Session {
	s := New()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Prune drops sessions idle for longer than the ttl and returns how many were
// removed.
func (m *Manager) Prune(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.Snapshot().UpdatedAt) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
