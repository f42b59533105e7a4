package grpcserver

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, never payloads
		log.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// Sessions validates session handles against the caller fingerprint.
type Sessions interface {
	Create(userID uuid.UUID, userAgent, sourceIP string) (string, error)
	Validate(sessionID, userAgent, sourceIP string) (uuid.UUID, bool)
	Destroy(sessionID string)
}

// SessionUnary rejects calls to guarded methods unless the session-id metadata
// names a live session bound to the caller's user agent and address. The session
// owner is stored in the handler context.
func SessionUnary(sessions Sessions, trustProxy bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] || !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return next(ctx, req)
		}
		sid := firstMD(ctx, mdSessionID)
		if sid == "" {
			return nil, status.Error(codes.Unauthenticated, "no session")
		}
		ua, ip := clientInfo(ctx, trustProxy)
		uid, ok := sessions.Validate(sid, ua, ip)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "session expired")
		}
		return next(withViewer(ctx, uid), req)
	}
}
