package auth

import (
	"context"
	"errors"
	"net/http"
)

// Manager ties the signed cookie to the session store.
type Manager struct {
	Codec *CookieCodec
	Store SessionStore
}

func NewManager(codec *CookieCodec, store SessionStore) *Manager {
	return &Manager{Codec: codec, Store: store}
}

// Load returns the session named by the request cookie, or a fresh anonymous
// one when the cookie is missing, invalid or points at an unknown session.
// Only store failures other than "not found" are returned as errors.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return NewSession(), nil
	}
	id, err := m.Codec.Decode(c.Value)
	if err != nil {
		return NewSession(), nil
	}
	s, err := m.Store.Get(r.Context(), id)
	if errors.Is(err, ErrSessionNotFound) {
		return NewSession(), nil
	}
	if err != nil {
		return NewSession(), err
	}
	return s, nil
}

// Save persists the session and (re)issues its cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.Store.Save(ctx, s); err != nil {
		return err
	}
	return m.Codec.SetCookie(w, s.ID)
}

// Renew moves the session to a fresh id, dropping the old one. Called on login
// so a pre-login cookie cannot ride into the authenticated session.
func (m *Manager) Renew(ctx context.Context, s *Session) error {
	old := s.ID
	s.ID = NewSession().ID
	return m.Store.Delete(ctx, old)
}
