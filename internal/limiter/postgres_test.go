package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

/************ fake pgx ************/
type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr   error
	count   int
	lastArg []any

	lastExecSQL  string
	lastExecArgs []any
	execErr      error
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL = sql
	f.lastExecArgs = args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.lastArg = args
	if !strings.Contains(sql, "SELECT COUNT(*) FROM login_attempts") {
		return fakeRow{scan: func(dest ...any) error { return errors.New("unexpected query") }}
	}
	return fakeRow{scan: func(dest ...any) error {
		if f.qrErr != nil {
			return f.qrErr
		}
		*(dest[0].(*int)) = f.count
		return nil
	}}
}

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestFailures_CountsWithinWindow(t *testing.T) {
	fp := &fakePool{count: 4}
	l := NewPG(fp)
	l.now = fixedNow

	n, err := l.Failures(context.Background(), "tu1@tu.com", 15*time.Minute)
	if err != nil || n != 4 {
		t.Fatalf("Failures: n=%d err=%v", n, err)
	}
	if string(fp.lastArg[0].([]byte)) != string(HashSubject("tu1@tu.com")) {
		t.Fatalf("subject must be hashed")
	}
	if cutoff := fp.lastArg[1].(time.Time); !cutoff.Equal(fixedNow().Add(-15 * time.Minute)) {
		t.Fatalf("cutoff=%v", cutoff)
	}
}

func TestFailures_DBError_Propagates(t *testing.T) {
	fp := &fakePool{qrErr: errors.New("db boom")}
	l := NewPG(fp)

	if _, err := l.Failures(context.Background(), "u", time.Minute); err == nil {
		t.Fatalf("want error propagate")
	}
}

func TestFailure_Inserts(t *testing.T) {
	fp := &fakePool{}
	l := NewPG(fp)
	l.now = fixedNow

	if err := l.Failure(context.Background(), "u@x.com"); err != nil {
		t.Fatalf("Failure: %v", err)
	}
	if !strings.Contains(fp.lastExecSQL, "INSERT INTO login_attempts") {
		t.Fatalf("unexpected exec: %s", fp.lastExecSQL)
	}
	if at := fp.lastExecArgs[1].(time.Time); !at.Equal(fixedNow()) {
		t.Fatalf("attempted_at=%v", at)
	}
}

func TestFailure_ExecError_Propagates(t *testing.T) {
	fp := &fakePool{execErr: errors.New("exec fail")}
	l := NewPG(fp)

	if err := l.Failure(context.Background(), "u"); err == nil {
		t.Fatalf("want exec error")
	}
}

func TestHashSubject_Determinism(t *testing.T) {
	a := HashSubject("tu1@tu.com")
	b := HashSubject("TU1@tu.com")
	c := HashSubject("tu2@tu.com")
	if string(a) != string(b) || string(a) == string(c) || len(a) != 32 {
		t.Fatalf("hash mismatch/len: %d", len(a))
	}
}
