package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed attempt ledger.
type PG struct {
	pool pgxQuerier
	now  func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter over a pool, a transaction or a mock.
func NewPG(q pgxQuerier) *PG {
	return &PG{pool: q, now: time.Now}
}

// Failures counts attempts strictly newer than now-window.
func (l *PG) Failures(ctx context.Context, subject string, window time.Duration) (int, error) {
	const q = `SELECT COUNT(*) FROM login_attempts WHERE subject=$1 AND attempted_at > $2`
	var n int
	if err := l.pool.QueryRow(ctx, q, HashSubject(subject), l.now().Add(-window)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Failure records one failed attempt.
func (l *PG) Failure(ctx context.Context, subject string) error {
	const q = `INSERT INTO login_attempts (subject, attempted_at) VALUES ($1, $2)`
	_, err := l.pool.Exec(ctx, q, HashSubject(subject), l.now())
	return err
}
