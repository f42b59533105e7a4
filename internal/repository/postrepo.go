package repository

import (
	"context"
	"time"

	"github.com/and161185/blog-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PostRepository provides access to published posts. Lists are newest first.
type PostRepository interface {
	// ListIDs returns the ids of every post (mask-map seeding).
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	// Create inserts a post and returns its id.
	Create(ctx context.Context, userID uuid.UUID, title, content string, at time.Time) (uuid.UUID, error)
	// Get loads one post.
	Get(ctx context.Context, id uuid.UUID) (*model.Post, error)
	// List returns all posts.
	List(ctx context.Context) ([]model.Post, error)
	// ListByUser returns the posts written by userID.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Post, error)
	// Update replaces title and content and bumps the post time.
	Update(ctx context.Context, id uuid.UUID, title, content string, at time.Time) error
	// Delete removes a post.
	Delete(ctx context.Context, id uuid.UUID) error
	// Search returns posts whose title or content contains term.
	Search(ctx context.Context, term string) ([]model.Post, error)
}
