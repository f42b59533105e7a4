// Package session issues and validates fingerprint-bound session handles.
//
// Sessions live only in process memory. A handle is valid while the source IP and
// the parsed browser and OS identity match the values captured at creation and the
// absolute lifetime has not elapsed. Any failed validation deletes the session.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/blog-keeper/internal/errs"
	"github.com/and161185/blog-keeper/internal/model"
)

// DefaultTTL is the absolute session lifetime measured from creation.
const DefaultTTL = 30 * time.Minute

// Manager owns the session map. All access goes through a single mutex.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	ttl      time.Duration
	now      func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithTTL overrides the absolute session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager constructs an empty session store.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]model.Session),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create mints a session for userID bound to the client fingerprint and returns its id.
func (m *Manager) Create(userID uuid.UUID, userAgent, sourceIP string) (string, error) {
	if userID == uuid.Nil || userAgent == "" || sourceIP == "" {
		return "", fmt.Errorf("create session: %w", errs.ErrInvalidArgument)
	}
	fp := ParseFingerprint(userAgent)

	m.mu.Lock()
	defer m.mu.Unlock()

	var id string
	for {
		u, err := uuid.NewV4()
		if err != nil {
			return "", fmt.Errorf("session id: %w: %w", errs.ErrUpstream, err)
		}
		id = u.String()
		if _, taken := m.sessions[id]; !taken {
			break
		}
	}
	m.sessions[id] = model.Session{
		ID:          id,
		UserID:      userID,
		Fingerprint: fp,
		SourceIP:    sourceIP,
		CreatedAt:   m.now(),
	}
	return id, nil
}

// Validate reports whether sessionID is live for the presenting client and returns its user.
// A session that fails any check is deleted.
func (m *Manager) Validate(sessionID, userAgent, sourceIP string) (uuid.UUID, bool) {
	if sessionID == "" {
		return uuid.Nil, false
	}
	fp := ParseFingerprint(userAgent)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return uuid.Nil, false
	}
	if s.SourceIP == sourceIP &&
		sameBrowser(s.Fingerprint, fp) &&
		sameOS(s.Fingerprint, fp) &&
		m.now().Sub(s.CreatedAt) < m.ttl {
		return s.UserID, true
	}
	delete(m.sessions, sessionID)
	return uuid.Nil, false
}

// Destroy removes the session if present.
func (m *Manager) Destroy(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Sweep drops every session whose lifetime has elapsed and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if now.Sub(s.CreatedAt) >= m.ttl {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of live entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
