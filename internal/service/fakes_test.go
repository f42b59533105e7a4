package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/blog-keeper/internal/errs"
	"github.com/and161185/blog-keeper/internal/limiter"
	"github.com/and161185/blog-keeper/internal/model"
	"github.com/and161185/blog-keeper/internal/repository"
)

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*model.User

	createErr error
	getErr    error
	existsErr error
	touchErr  error

	// lateEmailErr fails EmailExists from call number lateEmailAt on.
	lateEmailErr error
	lateEmailAt  int
	emailCalls   int

	touched int
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers(us ...*model.User) *fakeUsers {
	f := &fakeUsers{byEmail: map[string]*model.User{}}
	for _, u := range us {
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byEmail {
		if x.Username == u.Username {
			return errs.ErrAlreadyExists
		}
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return errs.ErrAlreadyExists
	}
	c := *u
	f.byEmail[u.Email] = &c
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailCalls++
	if f.lateEmailErr != nil && f.emailCalls >= f.lateEmailAt {
		return false, f.lateEmailErr
	}
	_, ok := f.byEmail[email]
	return ok, f.existsErr
}

func (f *fakeUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.Username == username {
			return true, f.existsErr
		}
	}
	return false, f.existsErr
}

func (f *fakeUsers) TouchMFA(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	for _, u := range f.byEmail {
		if u.ID == id {
			u.MFALastUse = at
			f.touched++
			return nil
		}
	}
	return errs.ErrNotFound
}

// memLimiter keeps attempts in memory against an injectable clock.
type memLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time

	countErr  error
	recordErr error
}

var _ limiter.Limiter = (*memLimiter)(nil)

func newMemLimiter(now func() time.Time) *memLimiter {
	return &memLimiter{attempts: map[string][]time.Time{}, now: now}
}

func (l *memLimiter) Failures(_ context.Context, subject string, window time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.countErr != nil {
		return 0, l.countErr
	}
	since := l.now().Add(-window)
	n := 0
	for _, at := range l.attempts[strings.ToLower(subject)] {
		if at.After(since) {
			n++
		}
	}
	return n, nil
}

func (l *memLimiter) Failure(_ context.Context, subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	k := strings.ToLower(subject)
	l.attempts[k] = append(l.attempts[k], l.now())
	return nil
}

func (l *memLimiter) seed(subject string, n int) {
	for i := 0; i < n; i++ {
		_ = l.Failure(context.Background(), subject)
	}
}

func (l *memLimiter) count(subject string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts[strings.ToLower(subject)])
}

type plainHasher struct{ err error }

func (h plainHasher) Hash(pw string) (string, error) { return "h:" + pw, h.err }
func (plainHasher) Verify(pw, digest string) bool   { return digest == "h:"+pw }

// countingHasher records the digests Verify was asked to check.
type countingHasher struct {
	plainHasher
	mu       sync.Mutex
	verified []string
}

func (h *countingHasher) Verify(pw, digest string) bool {
	h.mu.Lock()
	h.verified = append(h.verified, digest)
	h.mu.Unlock()
	return h.plainHasher.Verify(pw, digest)
}

// staticOTP accepts one code for any secret.
type staticOTP struct {
	code     string
	issueErr error
}

func (o staticOTP) Issue(account string) (model.Enrollment, error) {
	if o.issueErr != nil {
		return model.Enrollment{}, o.issueErr
	}
	return model.Enrollment{Secret: "SECRET", ProvisioningURI: "otpauth://totp/" + account}, nil
}

func (o staticOTP) Verify(_, code string) bool { return code == o.code }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
