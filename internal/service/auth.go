// Package service contains application services for authentication and posts.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/blog-keeper/internal/entity"
	"github.com/and161185/blog-keeper/internal/errs"
	"github.com/and161185/blog-keeper/internal/limiter"
	"github.com/and161185/blog-keeper/internal/model"
	"github.com/and161185/blog-keeper/internal/repository"
	"github.com/and161185/blog-keeper/internal/validate"
)

const (
	// DefaultMFAPeriod is how long a successful MFA verification stays fresh.
	DefaultMFAPeriod = 7 * 24 * time.Hour

	// initialMFAAge backdates mfa_last_use of new accounts so the first login asks for a code.
	initialMFAAge = 365 * 24 * time.Hour
)

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	Rejected OutcomeKind = iota
	PasswordAccepted
	MFAAccepted
)

// Reason explains a rejection.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMalformedEmail
	ReasonTooManyAttempts
	ReasonUnknown
	ReasonInvalidCode
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMalformedEmail:
		return "malformed email"
	case ReasonTooManyAttempts:
		return "too many attempts"
	case ReasonUnknown:
		return "unknown credentials"
	case ReasonInvalidCode:
		return "invalid code"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Outcome is the result of a login step. Reason is set only for Rejected;
// MFARequired only for PasswordAccepted.
type Outcome struct {
	Kind        OutcomeKind
	Reason      Reason
	UserID      uuid.UUID
	MFARequired bool
}

// Status is the HTTP-style status the caller reports for this outcome.
func (o Outcome) Status() int {
	if o.Kind != Rejected {
		return 200
	}
	if o.Reason == ReasonTooManyAttempts {
		return 429
	}
	return 401
}

func rejected(r Reason) Outcome { return Outcome{Kind: Rejected, Reason: r} }

// Signup is the result code of a registration attempt.
type Signup int

const (
	SignupOK Signup = iota
	SignupInvalidEmail
	SignupInvalidPassword
	SignupDuplicateEmail
	SignupDuplicateUsername
	SignupInvalidMFACode
	SignupError
)

func (s Signup) String() string {
	switch s {
	case SignupOK:
		return "ok"
	case SignupInvalidEmail:
		return "invalid email"
	case SignupInvalidPassword:
		return "invalid password"
	case SignupDuplicateEmail:
		return "email already registered"
	case SignupDuplicateUsername:
		return "username already registered"
	case SignupInvalidMFACode:
		return "invalid mfa code"
	default:
		return "error"
	}
}

// Registration is the signup form. Secret is the value handed out by Enroll.
type Registration struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Code      string
	Secret    string
}

// Hasher is the password digest capability.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// OTP is the one-time-code capability.
type OTP interface {
	Issue(account string) (model.Enrollment, error)
	Verify(secret, code string) bool
}

// AuthService runs the password and MFA login phases and account signup.
type AuthService struct {
	users     repository.UserRepository
	lim       limiter.Limiter
	hasher    Hasher
	otp       OTP
	mfaPeriod time.Duration
	now       func() time.Time

	// absent is verified against on unknown emails so both failures cost one digest check.
	absent string
}

// NewAuthService constructs AuthService with required dependencies.
// A non-positive mfaPeriod falls back to DefaultMFAPeriod.
func NewAuthService(users repository.UserRepository, lim limiter.Limiter, hasher Hasher, otp OTP, mfaPeriod time.Duration) *AuthService {
	if mfaPeriod <= 0 {
		mfaPeriod = DefaultMFAPeriod
	}
	s := &AuthService{users: users, lim: lim, hasher: hasher, otp: otp, mfaPeriod: mfaPeriod, now: time.Now}
	if digest, err := hasher.Hash(absentPassword); err == nil {
		s.absent = digest
	}
	return s
}

// absentPassword seeds the digest checked when no account matches the email.
const absentPassword = "#absent-account#"

// Enroll issues a fresh MFA secret for the signup form. The account label shown
// by authenticator apps is the email as typed, so it must be well formed.
func (s *AuthService) Enroll(account string) (model.Enrollment, error) {
	if !validate.Email(account) {
		return model.Enrollment{}, fmt.Errorf("enroll: %w", errs.ErrInvalidArgument)
	}
	en, err := s.otp.Issue(account)
	if err != nil {
		return model.Enrollment{}, upstream("issue mfa secret", err)
	}
	return en, nil
}

// PasswordLogin runs the first login phase. Failed attempts inside window are
// counted before this attempt is recorded; more than maxAttempts locks the account.
func (s *AuthService) PasswordLogin(ctx context.Context, email, password string, window time.Duration, maxAttempts int) (Outcome, error) {
	if !validate.Email(email) {
		return rejected(ReasonMalformedEmail), nil
	}
	email = entity.SanitizeForStorage(email)
	password = entity.SanitizeForStorage(password)

	u, err := s.lookup(ctx, email)
	if err != nil {
		return Outcome{}, err
	}
	failures, err := s.lim.Failures(ctx, email, window)
	if err != nil {
		return Outcome{}, upstream("count failures", err)
	}
	if u == nil {
		s.hasher.Verify(password, s.absent)
		return s.fail(ctx, email, ReasonUnknown)
	}
	if failures > maxAttempts {
		return rejected(ReasonTooManyAttempts), nil
	}
	if !s.hasher.Verify(password, u.PwdHash) {
		return s.fail(ctx, u.Email, ReasonUnknown)
	}
	return Outcome{
		Kind:        PasswordAccepted,
		UserID:      u.ID,
		MFARequired: s.now().Sub(u.MFALastUse) > s.mfaPeriod,
	}, nil
}

// MFALogin runs the second login phase and refreshes mfa_last_use on success.
func (s *AuthService) MFALogin(ctx context.Context, email, code string, window time.Duration, maxAttempts int) (Outcome, error) {
	email = entity.SanitizeForStorage(email)
	code = entity.SanitizeForStorage(code)

	u, err := s.lookup(ctx, email)
	if err != nil {
		return Outcome{}, err
	}
	failures, err := s.lim.Failures(ctx, email, window)
	if err != nil {
		return Outcome{}, upstream("count failures", err)
	}
	if failures > maxAttempts {
		return rejected(ReasonTooManyAttempts), nil
	}
	if u == nil {
		return s.fail(ctx, email, ReasonInvalidCode)
	}
	if !s.otp.Verify(u.MFASecret, code) {
		return s.fail(ctx, u.Email, ReasonInvalidCode)
	}
	if err := s.users.TouchMFA(ctx, u.ID, s.now()); err != nil {
		return Outcome{}, upstream("touch mfa", err)
	}
	return Outcome{Kind: MFAAccepted, UserID: u.ID}, nil
}

// Register validates the signup form and persists the account.
// Rules are checked in order and the first violation is returned.
func (s *AuthService) Register(ctx context.Context, r Registration) (Signup, error) {
	if !validate.Email(r.Email) {
		return SignupInvalidEmail, nil
	}
	if !validate.Password(r.Password) {
		return SignupInvalidPassword, nil
	}

	clean := Registration{
		Username:  entity.SanitizeForStorage(r.Username),
		Email:     entity.SanitizeForStorage(r.Email),
		Password:  entity.SanitizeForStorage(r.Password),
		FirstName: entity.SanitizeForStorage(r.FirstName),
		LastName:  entity.SanitizeForStorage(r.LastName),
		Code:      entity.SanitizeForStorage(r.Code),
		Secret:    entity.SanitizeForStorage(r.Secret),
	}
	for _, f := range []string{clean.Username, clean.Email, clean.Password, clean.FirstName, clean.LastName, clean.Code, clean.Secret} {
		if validate.Empty(f) {
			return SignupError, nil
		}
	}

	exists, err := s.users.EmailExists(ctx, clean.Email)
	if err != nil {
		return SignupError, upstream("email lookup", err)
	}
	if exists {
		return SignupDuplicateEmail, nil
	}
	exists, err = s.users.UsernameExists(ctx, clean.Username)
	if err != nil {
		return SignupError, upstream("username lookup", err)
	}
	if exists {
		return SignupDuplicateUsername, nil
	}
	if !s.otp.Verify(clean.Secret, clean.Code) {
		return SignupInvalidMFACode, nil
	}

	digest, err := s.hasher.Hash(clean.Password)
	if err != nil {
		return SignupError, upstream("hash password", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return SignupError, upstream("user id", err)
	}
	u := &model.User{
		ID:         id,
		Username:   clean.Username,
		Email:      clean.Email,
		PwdHash:    digest,
		FirstName:  clean.FirstName,
		LastName:   clean.LastName,
		MFASecret:  clean.Secret,
		MFALastUse: s.now().Add(-initialMFAAge),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			// Lost a race with a concurrent signup; the unique index decides.
			taken, err := s.users.EmailExists(ctx, clean.Email)
			if err != nil {
				return SignupError, upstream("email lookup", err)
			}
			if taken {
				return SignupDuplicateEmail, nil
			}
			return SignupDuplicateUsername, nil
		}
		return SignupError, upstream("create user", err)
	}
	return SignupOK, nil
}

// lookup returns nil without error when no user has this email.
func (s *AuthService) lookup(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, upstream("user lookup", err)
	}
	return u, nil
}

// fail records a failed attempt against subject and rejects with reason.
func (s *AuthService) fail(ctx context.Context, subject string, reason Reason) (Outcome, error) {
	if err := s.lim.Failure(ctx, subject); err != nil {
		return Outcome{}, upstream("record failure", err)
	}
	return rejected(reason), nil
}

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errs.ErrUpstream, err)
}
