// Package grpcserver exposes the blog gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/blog-keeper/internal/errs"
	"github.com/and161185/blog-keeper/internal/model"
	"github.com/and161185/blog-keeper/internal/service"
	"github.com/and161185/blog-keeper/internal/session"
)

// Auth is the login and signup pipeline.
type Auth interface {
	Enroll(account string) (model.Enrollment, error)
	Register(ctx context.Context, r service.Registration) (service.Signup, error)
	PasswordLogin(ctx context.Context, email, password string, window time.Duration, maxAttempts int) (service.Outcome, error)
	MFALogin(ctx context.Context, email, code string, window time.Duration, maxAttempts int) (service.Outcome, error)
}

// Posts is the content service.
type Posts interface {
	Create(ctx context.Context, userID uuid.UUID, title, content string) (string, error)
	Feed(ctx context.Context, viewer uuid.UUID) ([]model.PostView, error)
	Mine(ctx context.Context, viewer uuid.UUID) ([]model.PostView, error)
	Search(ctx context.Context, viewer uuid.UUID, query string) ([]model.PostView, error)
	Get(ctx context.Context, viewer uuid.UUID, token string) (model.PostView, error)
	Edit(ctx context.Context, viewer uuid.UUID, token, title, content string) error
	Delete(ctx context.Context, viewer uuid.UUID, token string) error
}

// PendingLogins links the MFA phase to a password phase that passed for the same email.
type PendingLogins interface {
	Issue(email string) (string, error)
	Check(ticket, email string) bool
	Redeem(ticket string)
}

// Lockout parameterizes the failed-login lockout.
type Lockout struct {
	Window      time.Duration
	MaxAttempts int
}

// Server wires services into gRPC handlers.
type Server struct {
	auth       Auth
	posts      Posts
	sessions   Sessions
	pending    PendingLogins
	log        *zap.Logger
	lockout    Lockout
	trustProxy bool
}

var _ BlogServer = (*Server)(nil)

// Option customizes a Server.
type Option func(*Server)

// WithLockout sets the lockout window and threshold.
func WithLockout(l Lockout) Option { return func(s *Server) { s.lockout = l } }

// WithPendingLogins replaces the default in-memory ticket store.
func WithPendingLogins(p PendingLogins) Option { return func(s *Server) { s.pending = p } }

// WithTrustProxy makes the server take the client address from x-forwarded-for.
func WithTrustProxy(trust bool) Option { return func(s *Server) { s.trustProxy = trust } }

// New constructs a gRPC server with injected services.
func New(auth Auth, posts Posts, sessions Sessions, log *zap.Logger, opts ...Option) *Server {
	s := &Server{
		auth:     auth,
		posts:    posts,
		sessions: sessions,
		pending:  session.NewPending(session.DefaultPendingTTL, nil),
		log:      log,
		lockout:  Lockout{Window: 15 * time.Minute, MaxAttempts: 5},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- Auth ---

// Enroll issues a fresh MFA secret for the signup form.
func (s *Server) Enroll(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	en, err := s.auth.Enroll(str(in, "email"))
	if err != nil {
		return nil, s.toStatus("enroll", err)
	}
	return reply(map[string]any{
		"secret":           en.Secret,
		"provisioning_uri": en.ProvisioningURI,
		"qr_code":          en.QRCode,
	})
}

// Register creates a new account.
func (s *Server) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := s.auth.Register(ctx, service.Registration{
		Username:  str(in, "username"),
		Email:     str(in, "email"),
		Password:  str(in, "password"),
		FirstName: str(in, "first_name"),
		LastName:  str(in, "last_name"),
		Code:      str(in, "code"),
		Secret:    str(in, "secret"),
	})
	if err != nil {
		return nil, s.toStatus("register", err)
	}
	switch res {
	case service.SignupOK:
		return reply(map[string]any{"result": res.String()})
	case service.SignupDuplicateEmail, service.SignupDuplicateUsername:
		return nil, status.Error(codes.AlreadyExists, res.String())
	default:
		return nil, status.Error(codes.InvalidArgument, res.String())
	}
}

// Login runs the password phase. A session is minted unless MFA is due, in which
// case the reply carries the ticket VerifyMFA must present.
func (s *Server) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	email := str(in, "email")
	out, err := s.auth.PasswordLogin(ctx, email, str(in, "password"), s.lockout.Window, s.lockout.MaxAttempts)
	if err != nil {
		return nil, s.toStatus("login", err)
	}
	switch out.Kind {
	case service.Rejected:
		return nil, rejection(out)
	case service.PasswordAccepted:
		if out.MFARequired {
			ticket, err := s.pending.Issue(email)
			if err != nil {
				return nil, s.toStatus("issue mfa ticket", err)
			}
			return reply(map[string]any{"mfa_required": true, "mfa_ticket": ticket})
		}
		return s.startSession(ctx, out.UserID)
	default:
		return nil, s.toStatus("login", errors.New("unexpected outcome"))
	}
}

// VerifyMFA runs the MFA phase for a ticket issued by Login and mints a session on success.
func (s *Server) VerifyMFA(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	email, ticket := str(in, "email"), str(in, "mfa_ticket")
	if !s.pending.Check(ticket, email) {
		return nil, status.Error(codes.Unauthenticated, "password login required")
	}
	out, err := s.auth.MFALogin(ctx, email, str(in, "code"), s.lockout.Window, s.lockout.MaxAttempts)
	if err != nil {
		return nil, s.toStatus("verify mfa", err)
	}
	switch out.Kind {
	case service.Rejected:
		return nil, rejection(out)
	case service.MFAAccepted:
		s.pending.Redeem(ticket)
		return s.startSession(ctx, out.UserID)
	default:
		return nil, s.toStatus("verify mfa", errors.New("unexpected outcome"))
	}
}

// Logout destroys the caller's session, if any.
func (s *Server) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if sid := firstMD(ctx, mdSessionID); sid != "" {
		s.sessions.Destroy(sid)
	}
	return reply(nil)
}

func (s *Server) startSession(ctx context.Context, userID uuid.UUID) (*structpb.Struct, error) {
	ua, ip := clientInfo(ctx, s.trustProxy)
	sid, err := s.sessions.Create(userID, ua, ip)
	if err != nil {
		return nil, s.toStatus("create session", err)
	}
	return reply(map[string]any{"session_id": sid, "mfa_required": false})
}

// --- Posts ---

// Feed lists every post.
func (s *Server) Feed(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	uid, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.posts.Feed(ctx, uid)
	if err != nil {
		return nil, s.toStatus("feed", err)
	}
	return postList(list)
}

// MyPosts lists the caller's posts.
func (s *Server) MyPosts(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	uid, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.posts.Mine(ctx, uid)
	if err != nil {
		return nil, s.toStatus("my posts", err)
	}
	return postList(list)
}

// Search lists posts matching "query".
func (s *Server) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	uid, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.posts.Search(ctx, uid, str(in, "query"))
	if err != nil {
		return nil, s.toStatus("search", err)
	}
	return postList(list)
}

// GetPost returns one post by masked "id".
func (s *Server) GetPost(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	uid, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.posts.Get(ctx, uid, str(in, "id"))
	if err != nil {
		return nil, s.toStatus("get post", err)
	}
	return reply(map[string]any{"post": postValue(p)})
}

// AddPost publishes a post and returns its masked id.
func (s *Server) AddPost(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	uid, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	token, err := s.posts.Create(ctx, uid, str(in, "title"), str(in, "content"))
	if err != nil {
		return nil, s.toStatus("add post", err)
	}
	return reply(map[string]any{"id": token})
}

// EditPost replaces title and content of the caller's post.
func (s *Server) EditPost(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	uid, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.posts.Edit(ctx, uid, str(in, "id"), str(in, "title"), str(in, "content")); err != nil {
		return nil, s.toStatus("edit post", err)
	}
	return reply(nil)
}

// DeletePost removes the caller's post.
func (s *Server) DeletePost(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	uid, err := requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.posts.Delete(ctx, uid, str(in, "id")); err != nil {
		return nil, s.toStatus("delete post", err)
	}
	return reply(nil)
}

// --- helpers ---

func str(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal")
	}
	return out, nil
}

func postValue(p model.PostView) map[string]any {
	return map[string]any{
		"id":       p.ID,
		"title":    p.Title,
		"content":  p.Content,
		"author":   p.Author,
		"date":     p.Date,
		"editable": p.Editable,
	}
}

func postList(list []model.PostView) (*structpb.Struct, error) {
	items := make([]any, 0, len(list))
	for _, p := range list {
		items = append(items, postValue(p))
	}
	return reply(map[string]any{"posts": items})
}

func rejection(out service.Outcome) error {
	if out.Status() == 429 {
		return status.Error(codes.ResourceExhausted, out.Reason.String())
	}
	return status.Error(codes.Unauthenticated, out.Reason.String())
}

// toStatus maps service errors to gRPC codes. Anything unrecognized is logged
// with detail and reported as a bare Internal.
func (s *Server) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, "invalid argument")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	}
	s.log.Error("request failed", zap.String("op", op), zap.Error(err))
	return status.Error(codes.Internal, "internal")
}
