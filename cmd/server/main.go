// Command blog-server starts the blog gRPC server.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/blog-keeper/internal/config"
	pkgcrypto "github.com/and161185/blog-keeper/internal/crypto"
	"github.com/and161185/blog-keeper/internal/limiter"
	"github.com/and161185/blog-keeper/internal/mask"
	"github.com/and161185/blog-keeper/internal/mfa"
	"github.com/and161185/blog-keeper/internal/migrate"
	"github.com/and161185/blog-keeper/internal/repository/postgres"
	grpcserver "github.com/and161185/blog-keeper/internal/server/grpc"
	"github.com/and161185/blog-keeper/internal/service"
	"github.com/and161185/blog-keeper/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and starts a TLS-enabled gRPC server.
func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		logger.Fatal("failed to load TLS cert/key", zap.Error(err))
	}
	sealer, err := pkgcrypto.NewSealer([]byte(cfg.SealKey))
	if err != nil {
		logger.Fatal("seal key", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(db, cfg.FieldKey, sealer)
	postRepo := postgres.NewPostRepo(db)
	lim := limiter.NewPG(db.Pool)

	masks, err := mask.Load(ctx, postRepo)
	if err != nil {
		logger.Fatal("seed masks", zap.Error(err))
	}
	logger.Info("masks seeded", zap.Int("posts", masks.Len()))

	// Services
	authSvc := service.NewAuthService(userRepo, lim, pkgcrypto.NewBcrypt(cfg.BcryptCost), mfa.New(cfg.TOTPIssuer), cfg.MFAPeriod)
	postSvc := service.NewPostService(postRepo, userRepo, masks)
	sessions := session.NewManager(session.WithTTL(cfg.SessionTTL))
	pending := session.NewPending(session.DefaultPendingTTL, nil)
	go sweepSessions(ctx, sessions, pending, cfg.SweepEvery, logger)

	// gRPC server with interceptors
	s := grpc.NewServer(
		grpc.Creds(creds),
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.SessionUnary(sessions, cfg.TrustProxy),
		),
	)

	app := grpcserver.New(authSvc, postSvc, sessions, logger,
		grpcserver.WithLockout(grpcserver.Lockout{Window: cfg.LockoutFor, MaxAttempts: cfg.MaxAttempts}),
		grpcserver.WithTrustProxy(cfg.TrustProxy),
		grpcserver.WithPendingLogins(pending),
	)
	grpcserver.RegisterBlogServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening (TLS)", zap.String("addr", cfg.Addr))
		errCh <- s.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.ShutdownWait):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// sweepSessions drops expired sessions and MFA tickets until ctx is done.
func sweepSessions(ctx context.Context, m *session.Manager, p *session.Pending, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				log.Debug("sessions swept", zap.Int("removed", n), zap.Int("live", m.Len()))
			}
			if n := p.Sweep(); n > 0 {
				log.Debug("mfa tickets swept", zap.Int("removed", n), zap.Int("live", p.Len()))
			}
		}
	}
}
