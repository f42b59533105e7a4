package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/blog-keeper/internal/entity"
	"github.com/and161185/blog-keeper/internal/errs"
	"github.com/and161185/blog-keeper/internal/model"
	"github.com/and161185/blog-keeper/internal/repository"
	"github.com/and161185/blog-keeper/internal/validate"
)

// DateLayout renders PostView.Date, e.g. "Monday, 2 January 2006".
const DateLayout = "Monday, 2 January 2006"

// Masker hides post ids behind opaque tokens.
type Masker interface {
	Issue(realID uuid.UUID) (string, error)
	Mask(realID uuid.UUID) (string, bool)
	Unmask(token string) (uuid.UUID, bool)
	Forget(realID uuid.UUID)
}

// PostService implements the content operations. Clients only ever see mask tokens.
type PostService struct {
	posts repository.PostRepository
	users repository.UserRepository
	masks Masker
	now   func() time.Time
}

// NewPostService constructs PostService.
func NewPostService(posts repository.PostRepository, users repository.UserRepository, masks Masker) *PostService {
	return &PostService{posts: posts, users: users, masks: masks, now: time.Now}
}

// Create stores a new post by userID and returns its mask token.
func (s *PostService) Create(ctx context.Context, userID uuid.UUID, title, content string) (string, error) {
	if userID == uuid.Nil || validate.Empty(title) || validate.Empty(content) {
		return "", fmt.Errorf("create post: %w", errs.ErrInvalidArgument)
	}
	id, err := s.posts.Create(ctx, userID, entity.SanitizeForStorage(title), entity.SanitizeForStorage(content), s.now())
	if err != nil {
		return "", upstream("create post", err)
	}
	return s.masks.Issue(id)
}

// Feed returns every post.
func (s *PostService) Feed(ctx context.Context, viewer uuid.UUID) ([]model.PostView, error) {
	list, err := s.posts.List(ctx)
	if err != nil {
		return nil, upstream("list posts", err)
	}
	return s.views(ctx, viewer, list)
}

// Mine returns the viewer's own posts.
func (s *PostService) Mine(ctx context.Context, viewer uuid.UUID) ([]model.PostView, error) {
	list, err := s.posts.ListByUser(ctx, viewer)
	if err != nil {
		return nil, upstream("list own posts", err)
	}
	return s.views(ctx, viewer, list)
}

// Search returns posts whose title or content contains query. The query is
// sanitized first so it matches the stored form.
func (s *PostService) Search(ctx context.Context, viewer uuid.UUID, query string) ([]model.PostView, error) {
	list, err := s.posts.Search(ctx, entity.SanitizeForStorage(query))
	if err != nil {
		return nil, upstream("search posts", err)
	}
	return s.views(ctx, viewer, list)
}

// Get returns a single post by mask token.
func (s *PostService) Get(ctx context.Context, viewer uuid.UUID, token string) (model.PostView, error) {
	p, err := s.resolve(ctx, token)
	if err != nil {
		return model.PostView{}, err
	}
	out, err := s.views(ctx, viewer, []model.Post{*p})
	if err != nil {
		return model.PostView{}, err
	}
	return out[0], nil
}

// Edit replaces title and content of a post owned by viewer.
func (s *PostService) Edit(ctx context.Context, viewer uuid.UUID, token, title, content string) error {
	if validate.Empty(title) || validate.Empty(content) {
		return fmt.Errorf("edit post: %w", errs.ErrInvalidArgument)
	}
	p, err := s.owned(ctx, viewer, token)
	if err != nil {
		return err
	}
	err = s.posts.Update(ctx, p.ID, entity.SanitizeForStorage(title), entity.SanitizeForStorage(content), s.now())
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return err
		}
		return upstream("update post", err)
	}
	return nil
}

// Delete removes a post owned by viewer and drops its mask.
func (s *PostService) Delete(ctx context.Context, viewer uuid.UUID, token string) error {
	p, err := s.owned(ctx, viewer, token)
	if err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, p.ID); err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			return upstream("delete post", err)
		}
	}
	s.masks.Forget(p.ID)
	return nil
}

func (s *PostService) resolve(ctx context.Context, token string) (*model.Post, error) {
	id, ok := s.masks.Unmask(token)
	if !ok {
		return nil, fmt.Errorf("post %q: %w", token, errs.ErrNotFound)
	}
	p, err := s.posts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		return nil, upstream("get post", err)
	}
	return p, nil
}

func (s *PostService) owned(ctx context.Context, viewer uuid.UUID, token string) (*model.Post, error) {
	p, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.UserID != viewer {
		return nil, errs.ErrForbidden
	}
	return p, nil
}

// views renders posts for viewer. Authors are loaded once per distinct user.
func (s *PostService) views(ctx context.Context, viewer uuid.UUID, posts []model.Post) ([]model.PostView, error) {
	authors := make(map[uuid.UUID]string)
	out := make([]model.PostView, 0, len(posts))
	for _, p := range posts {
		name, ok := authors[p.UserID]
		if !ok {
			u, err := s.users.GetByID(ctx, p.UserID)
			if err != nil {
				return nil, upstream("load author", err)
			}
			name = u.Username
			authors[p.UserID] = name
		}
		token, ok := s.masks.Mask(p.ID)
		if !ok {
			var err error
			if token, err = s.masks.Issue(p.ID); err != nil {
				return nil, err
			}
		}
		out = append(out, model.PostView{
			ID:       token,
			Title:    entity.EncodeForDisplay(p.Title),
			Content:  entity.EncodeForDisplay(p.Content),
			Author:   entity.EncodeForDisplay(name),
			Date:     p.PostedAt.Format(DateLayout),
			Editable: p.UserID == viewer,
		})
	}
	return out, nil
}
