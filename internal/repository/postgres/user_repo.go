package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/blog-keeper/internal/errs"
	"github.com/and161185/blog-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// SecretSealer encrypts the MFA secret before it is written.
type SecretSealer interface {
	Seal(plaintext, ad []byte) ([]byte, error)
	Open(blob, ad []byte) ([]byte, error)
}

// UserRepo implements UserRepository using PostgreSQL. Email and names are encrypted
// with pgcrypto under fieldKey; lookups go through a SHA-256 digest of the email.
type UserRepo struct {
	db       *DB
	fieldKey string
	sealer   SecretSealer
}

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB, fieldKey string, sealer SecretSealer) *UserRepo {
	return &UserRepo{db: db, fieldKey: fieldKey, sealer: sealer}
}

func emailDigest(email string) []byte {
	h := sha256.Sum256([]byte(email))
	return h[:]
}

const selectUser = `
SELECT id, username, pgp_sym_decrypt(email, $2), pwd_hash,
       pgp_sym_decrypt(first_name, $2), pgp_sym_decrypt(last_name, $2),
       mfa_secret, mfa_last_use, created_at
FROM users `

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	sealed, err := r.sealer.Seal([]byte(u.MFASecret), u.ID.Bytes())
	if err != nil {
		return fmt.Errorf("seal mfa secret: %w", err)
	}
	const q = `
INSERT INTO users (id, username, email_digest, email, pwd_hash, first_name, last_name, mfa_secret, mfa_last_use)
VALUES ($1, $2, $3, pgp_sym_encrypt($4, $10), $5, pgp_sym_encrypt($6, $10), pgp_sym_encrypt($7, $10), $8, $9)`
	_, err = r.db.Pool.Exec(ctx, q,
		u.ID, u.Username, emailDigest(u.Email), u.Email, u.PwdHash,
		u.FirstName, u.LastName, sealed, u.MFALastUse, r.fieldKey)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectUser+`WHERE id=$1`, id, r.fieldKey))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectUser+`WHERE email_digest=$1`, emailDigest(email), r.fieldKey))
}

func (r *UserRepo) scanOne(row pgx.Row) (*model.User, error) {
	var (
		u      model.User
		sealed []byte
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PwdHash, &u.FirstName, &u.LastName, &sealed, &u.MFALastUse, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	secret, err := r.sealer.Open(sealed, u.ID.Bytes())
	if err != nil {
		return nil, fmt.Errorf("open mfa secret: %w", err)
	}
	u.MFASecret = string(secret)
	return &u, nil
}

// EmailExists reports whether a user with this email exists.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE email_digest=$1)`
	var ok bool
	err := r.db.Pool.QueryRow(ctx, q, emailDigest(email)).Scan(&ok)
	return ok, err
}

// UsernameExists reports whether a user with this username exists.
func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`
	var ok bool
	err := r.db.Pool.QueryRow(ctx, q, username).Scan(&ok)
	return ok, err
}

// TouchMFA advances mfa_last_use.
func (r *UserRepo) TouchMFA(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE users SET mfa_last_use = $2 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
