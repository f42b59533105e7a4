package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/blog-keeper/internal/errs"
)

// DefaultPendingTTL bounds the gap between the password and MFA phases.
const DefaultPendingTTL = 5 * time.Minute

type ticket struct {
	email    string
	issuedAt time.Time
}

// Pending holds tickets proving that the password phase passed for an email.
// The MFA phase must present one before a session is minted.
type Pending struct {
	mu      sync.Mutex
	tickets map[string]ticket
	ttl     time.Duration
	now     func() time.Time
}

// NewPending constructs an empty ticket store. A non-positive ttl falls back to DefaultPendingTTL.
func NewPending(ttl time.Duration, now func() time.Time) *Pending {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Pending{tickets: make(map[string]ticket), ttl: ttl, now: now}
}

// Issue returns a fresh ticket for email.
func (p *Pending) Issue(email string) (string, error) {
	if email == "" {
		return "", fmt.Errorf("issue ticket: %w", errs.ErrInvalidArgument)
	}
	u, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("ticket id: %w: %w", errs.ErrUpstream, err)
	}
	id := u.String()

	p.mu.Lock()
	p.tickets[id] = ticket{email: email, issuedAt: p.now()}
	p.mu.Unlock()
	return id, nil
}

// Check reports whether id is a live ticket issued for email. Expired tickets are dropped.
func (p *Pending) Check(id, email string) bool {
	if id == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tickets[id]
	if !ok {
		return false
	}
	if p.now().Sub(t.issuedAt) >= p.ttl {
		delete(p.tickets, id)
		return false
	}
	return t.email == email
}

// Redeem drops the ticket once the MFA phase succeeded.
func (p *Pending) Redeem(id string) {
	p.mu.Lock()
	delete(p.tickets, id)
	p.mu.Unlock()
}

// Sweep drops expired tickets and returns how many were removed.
func (p *Pending) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := 0
	for id, t := range p.tickets {
		if now.Sub(t.issuedAt) >= p.ttl {
			delete(p.tickets, id)
			n++
		}
	}
	return n
}

// Len returns the number of outstanding tickets.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tickets)
}
