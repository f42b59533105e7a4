// Package mask maps internal item identifiers to random opaque tokens so that
// identifiers handed to clients reveal nothing about storage order or structure.
//
// The mapping lives for the lifetime of the process; a restart reassigns every mask.
package mask

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/blog-keeper/internal/errs"
)

// Lister returns the ids of every existing item.
type Lister interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Map is a bidirectional realID <-> token association guarded by one RWMutex.
type Map struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]string
	byToken map[string]uuid.UUID
	gen     func() (uuid.UUID, error)
}

// New returns an empty map.
func New() *Map {
	return &Map{
		byID:    make(map[uuid.UUID]string),
		byToken: make(map[string]uuid.UUID),
		gen:     uuid.NewV4,
	}
}

// Load builds a map seeded with a fresh mask for every id the lister returns.
func Load(ctx context.Context, l Lister) (*Map, error) {
	ids, err := l.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed masks: %w", err)
	}
	m := New()
	for _, id := range ids {
		if _, err := m.Issue(id); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Issue assigns a new random token to realID, replacing any previous one, and returns it.
func (m *Map) Issue(realID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var token string
	for {
		u, err := m.gen()
		if err != nil {
			return "", fmt.Errorf("mask token: %w: %w", errs.ErrUpstream, err)
		}
		token = u.String()
		if _, taken := m.byToken[token]; !taken {
			break
		}
	}
	if prev, ok := m.byID[realID]; ok {
		delete(m.byToken, prev)
	}
	m.byID[realID] = token
	m.byToken[token] = realID
	return token, nil
}

// Mask returns the token currently assigned to realID.
func (m *Map) Mask(realID uuid.UUID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byID[realID]
	return t, ok
}

// Unmask resolves a token back to the real id.
func (m *Map) Unmask(token string) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byToken[token]
	return id, ok
}

// Forget drops the association for a deleted item. Unknown ids are ignored.
func (m *Map) Forget(realID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.byID[realID]; ok {
		delete(m.byToken, t)
		delete(m.byID, realID)
	}
}

// Len returns the number of live associations.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
