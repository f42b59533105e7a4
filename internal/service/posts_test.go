package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/blog-keeper/internal/errs"
	"github.com/and161185/blog-keeper/internal/mask"
	"github.com/and161185/blog-keeper/internal/model"
	"github.com/and161185/blog-keeper/internal/repository"
)

type fakePosts struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]model.Post
	err   error
	terms []string
}

var _ repository.PostRepository = (*fakePosts)(nil)

func newFakePosts() *fakePosts { return &fakePosts{byID: map[uuid.UUID]model.Post{}} }

func (f *fakePosts) ListIDs(context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uuid.UUID, 0, len(f.byID))
	for id := range f.byID {
		out = append(out, id)
	}
	return out, f.err
}

func (f *fakePosts) Create(_ context.Context, userID uuid.UUID, title, content string, at time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, f.err
	}
	id := uuid.Must(uuid.NewV4())
	f.byID[id] = model.Post{ID: id, UserID: userID, Title: title, Content: content, PostedAt: at}
	return id, nil
}

func (f *fakePosts) Get(_ context.Context, id uuid.UUID) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (f *fakePosts) filter(keep func(model.Post) bool) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Post
	for _, p := range f.byID {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.After(out[j].PostedAt) })
	return out, nil
}

func (f *fakePosts) List(context.Context) ([]model.Post, error) {
	return f.filter(func(model.Post) bool { return true })
}

func (f *fakePosts) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Post, error) {
	return f.filter(func(p model.Post) bool { return p.UserID == userID })
}

func (f *fakePosts) Update(_ context.Context, id uuid.UUID, title, content string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	p, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.Title, p.Content, p.PostedAt = title, content, at
	f.byID[id] = p
	return nil
}

func (f *fakePosts) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.byID[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakePosts) Search(_ context.Context, term string) ([]model.Post, error) {
	f.mu.Lock()
	f.terms = append(f.terms, term)
	f.mu.Unlock()
	return f.filter(func(p model.Post) bool {
		return strings.Contains(p.Title, term) || strings.Contains(p.Content, term)
	})
}

type postFixture struct {
	svc        *PostService
	posts      *fakePosts
	masks      *mask.Map
	clk        *testClock
	alice, bob uuid.UUID
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	alice := &model.User{ID: uuid.Must(uuid.NewV4()), Username: "alice", Email: "alice@example.com"}
	bob := &model.User{ID: uuid.Must(uuid.NewV4()), Username: "bob&#95;b", Email: "bob@example.com"}
	posts := newFakePosts()
	masks := mask.New()
	clk := &testClock{t: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
	svc := NewPostService(posts, newFakeUsers(alice, bob), masks)
	svc.now = clk.Now
	return &postFixture{svc: svc, posts: posts, masks: masks, clk: clk, alice: alice.ID, bob: bob.ID}
}

func TestPostService_CreateAndFeed(t *testing.T) {
	t.Parallel()
	f := newPostFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.alice, "", "body")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	first, err := f.svc.Create(ctx, f.alice, "Hello <world>", "it's 100% fine")
	require.NoError(t, err)
	f.clk.Advance(time.Hour)
	second, err := f.svc.Create(ctx, f.bob, "Second", "body")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	feed, err := f.svc.Feed(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	require.Equal(t, second, feed[0].ID)
	require.False(t, feed[0].Editable)
	require.Equal(t, "bob&#95;b", feed[0].Author)

	p := feed[1]
	require.Equal(t, first, p.ID)
	require.True(t, p.Editable)
	require.Equal(t, "Hello &#60;world&#62;", p.Title)
	require.Equal(t, "it&#39;s 100&#37; fine", p.Content)
	require.Equal(t, "alice", p.Author)
	require.Equal(t, "Monday, 2 March 2026", p.Date)

	for _, v := range feed {
		_, err := uuid.FromString(v.ID)
		require.NoError(t, err)
		id, ok := f.masks.Unmask(v.ID)
		require.True(t, ok)
		require.NotEqual(t, v.ID, id.String(), "real id must not leak")
	}
}

func TestPostService_MineAndSearch(t *testing.T) {
	t.Parallel()
	f := newPostFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.alice, "go <tips>", "x")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.bob, "rust", "y")
	require.NoError(t, err)

	mine, err := f.svc.Mine(ctx, f.bob)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "rust", mine[0].Title)

	hits, err := f.svc.Search(ctx, f.bob, "<tips>")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, []string{"&#60;tips&#62;"}, f.posts.terms)
}

func TestPostService_GetEditDelete(t *testing.T) {
	t.Parallel()
	f := newPostFixture(t)
	ctx := context.Background()

	token, err := f.svc.Create(ctx, f.alice, "t", "c")
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.bob, "nope")
	require.ErrorIs(t, err, errs.ErrNotFound)

	v, err := f.svc.Get(ctx, f.bob, token)
	require.NoError(t, err)
	require.False(t, v.Editable)

	require.ErrorIs(t, f.svc.Edit(ctx, f.alice, token, "", "c"), errs.ErrInvalidArgument)
	require.ErrorIs(t, f.svc.Edit(ctx, f.bob, token, "t2", "c2"), errs.ErrForbidden)
	require.NoError(t, f.svc.Edit(ctx, f.alice, token, "t2", "a & b"))

	v, err = f.svc.Get(ctx, f.alice, token)
	require.NoError(t, err)
	require.Equal(t, "t2", v.Title)
	require.Equal(t, "a &#38; b", v.Content)

	require.ErrorIs(t, f.svc.Delete(ctx, f.bob, token), errs.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.alice, token))
	_, ok := f.masks.Unmask(token)
	require.False(t, ok, "mask must be purged on delete")
	require.ErrorIs(t, f.svc.Delete(ctx, f.alice, token), errs.ErrNotFound)
}

func TestPostService_UpstreamErrors(t *testing.T) {
	t.Parallel()
	f := newPostFixture(t)
	ctx := context.Background()

	token, err := f.svc.Create(ctx, f.alice, "t", "c")
	require.NoError(t, err)

	f.posts.err = errors.New("db down")
	_, err = f.svc.Feed(ctx, f.alice)
	require.ErrorIs(t, err, errs.ErrUpstream)
	_, err = f.svc.Get(ctx, f.alice, token)
	require.ErrorIs(t, err, errs.ErrUpstream)
	_, err = f.svc.Create(ctx, f.alice, "t", "c")
	require.ErrorIs(t, err, errs.ErrUpstream)
}

func TestPostService_MasksLoadedAtStartup(t *testing.T) {
	t.Parallel()
	f := newPostFixture(t)
	ctx := context.Background()

	id, err := f.posts.Create(ctx, f.alice, "seeded", "c", f.clk.Now())
	require.NoError(t, err)

	masks, err := mask.Load(ctx, f.posts)
	require.NoError(t, err)
	svc := NewPostService(f.posts, f.svc.users, masks)

	feed, err := svc.Feed(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	got, ok := masks.Unmask(feed[0].ID)
	require.True(t, ok)
	require.Equal(t, id, got)
}
