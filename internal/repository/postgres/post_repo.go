package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/and161185/blog-keeper/internal/errs"
	"github.com/and161185/blog-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PostRepo implements PostRepository using PostgreSQL.
type PostRepo struct{ db *DB }

// NewPostRepo constructs a post repository.
func NewPostRepo(db *DB) *PostRepo { return &PostRepo{db: db} }

const selectPost = `SELECT id, user_id, title, content, post_time FROM posts `

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListIDs returns every post id.
func (r *PostRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id FROM posts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Create inserts a post.
func (r *PostRepo) Create(ctx context.Context, userID uuid.UUID, title, content string, at time.Time) (uuid.UUID, error) {
	const q = `INSERT INTO posts (user_id, title, content, post_time) VALUES ($1, $2, $3, $4) RETURNING id`
	var id uuid.UUID
	if err := r.db.Pool.QueryRow(ctx, q, userID, title, content, at).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Get returns a single post by id.
func (r *PostRepo) Get(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	var p model.Post
	err := r.db.Pool.QueryRow(ctx, selectPost+`WHERE id=$1`, id).
		Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List returns all posts, newest first.
func (r *PostRepo) List(ctx context.Context) ([]model.Post, error) {
	return r.query(ctx, selectPost+`ORDER BY post_time DESC`)
}

// ListByUser returns the posts of one author, newest first.
func (r *PostRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Post, error) {
	return r.query(ctx, selectPost+`WHERE user_id=$1 ORDER BY post_time DESC`, userID)
}

// Search matches term as a literal substring of title or content.
func (r *PostRepo) Search(ctx context.Context, term string) ([]model.Post, error) {
	pattern := "%" + likeEscaper.Replace(term) + "%"
	return r.query(ctx, selectPost+`WHERE title LIKE $1 OR content LIKE $1 ORDER BY post_time DESC`, pattern)
}

// Update replaces title and content.
func (r *PostRepo) Update(ctx context.Context, id uuid.UUID, title, content string, at time.Time) error {
	const q = `UPDATE posts SET title = $2, content = $3, post_time = $4 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, title, content, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a post.
func (r *PostRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *PostRepo) query(ctx context.Context, q string, args ...any) ([]model.Post, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Post
	for rows.Next() {
		var p model.Post
		if err = rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.PostedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
