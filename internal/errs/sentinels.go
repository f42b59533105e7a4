// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/transport layers.
var (
	// ErrNotFound indicates the requested entity (user, post, mask) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing, forged or expired session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates that the failed-attempt lockout is in effect.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates malformed or missing input; a caller bug, never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrForbidden indicates the caller does not own the entity it tries to change.
	ErrForbidden = errors.New("forbidden")

	// ErrUpstream indicates that storage or a cryptographic capability failed.
	// Details are logged at the boundary and never returned to end users.
	ErrUpstream = errors.New("upstream failure")
)
