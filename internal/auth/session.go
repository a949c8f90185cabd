package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the per-client state: the auth flag and pending flash messages.
type Session struct {
	ID            string   `json:"id"`
	Authenticated bool     `json:"authenticated"`
	Flashes       []string `json:"flashes,omitempty"`
}

func NewSession() *Session {
	return &Session{ID: uuid.New().String()}
}

func (s *Session) Login() {
	s.Authenticated = true
}

func (s *Session) Logout() {
	s.Authenticated = false
}

func (s *Session) Flash(msg string) {
	s.Flashes = append(s.Flashes, msg)
}

// PopFlashes returns and clears the pending messages.
func (s *Session) PopFlashes() []string {
	msgs := s.Flashes
	s.Flashes = nil
	return msgs
}

type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session Session
	expires time.Time
}

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return nil, ErrSessionNotFound
	}
	s := e.session
	s.Flashes = append([]string(nil), e.session.Flashes...)
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	cp := *s
	cp.Flashes = append([]string(nil), s.Flashes...)
	m.mu.Lock()
	m.sessions[s.ID] = memoryEntry{session: cp, expires: time.Now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired sessions.
func (m *MemoryStore) Sweep() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if now.After(e.expires) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
