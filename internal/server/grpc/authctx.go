package grpcserver

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// viewerKey carries the owner of the session SessionUnary accepted.
type viewerKey struct{}

func withViewer(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, viewerKey{}, id)
}

// Viewer returns the user whose session authorized the call.
func Viewer(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(viewerKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// requireViewer is Viewer for handlers of guarded methods.
func requireViewer(ctx context.Context) (uuid.UUID, error) {
	id, ok := Viewer(ctx)
	if !ok {
		return uuid.Nil, status.Error(codes.Unauthenticated, "no session")
	}
	return id, nil
}
