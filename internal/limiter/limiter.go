// Package limiter keeps the failed-login ledger used for brute-force lockout.
package limiter

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"
)

// Limiter counts failed attempts per claimed identity over a trailing window.
// Records are append-only audit facts; counting and recording are not atomic.
type Limiter interface {
	// Failures returns the number of failed attempts for subject within window.
	Failures(ctx context.Context, subject string, window time.Duration) (int, error)
	// Failure appends a failed attempt for subject at the current time.
	Failure(ctx context.Context, subject string) error
}

// HashSubject returns a stable digest of the claimed identity so that raw email
// addresses are never written to the attempt ledger. Case is folded.
func HashSubject(subject string) []byte {
	h := sha256.Sum256([]byte(strings.ToLower(subject)))
	return h[:]
}
