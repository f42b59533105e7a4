package grpcserver

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// Metadata keys read from incoming calls.
const (
	mdSessionID    = "session-id"
	mdUserAgent    = "user-agent"
	mdForwardedFor = "x-forwarded-for"
)

func firstMD(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// clientIP returns the caller address. The left-most x-forwarded-for entry is
// used only when trustProxy is set; otherwise the transport peer host.
func clientIP(ctx context.Context, trustProxy bool) string {
	if trustProxy {
		if xff := firstMD(ctx, mdForwardedFor); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// clientInfo returns the user agent and address a session is bound to.
func clientInfo(ctx context.Context, trustProxy bool) (userAgent, ip string) {
	return firstMD(ctx, mdUserAgent), clientIP(ctx, trustProxy)
}
