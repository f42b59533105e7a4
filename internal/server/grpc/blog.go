package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "blog.v1.Blog"

// BlogServer is the handler set registered under ServiceName.
// Requests and responses are google.protobuf.Struct messages.
type BlogServer interface {
	Enroll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyMFA(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)

	Feed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MyPosts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPost(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddPost(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EditPost(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeletePost(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FullMethod returns "/blog.v1.Blog/<name>".
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// publicMethods do not require a session.
var publicMethods = map[string]bool{
	FullMethod("Enroll"):    true,
	FullMethod("Register"):  true,
	FullMethod("Login"):     true,
	FullMethod("VerifyMFA"): true,
	FullMethod("Logout"):    true,
}

type handlerFunc func(BlogServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, call handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BlogServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(BlogServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the blog service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BlogServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Enroll", BlogServer.Enroll),
		method("Register", BlogServer.Register),
		method("Login", BlogServer.Login),
		method("VerifyMFA", BlogServer.VerifyMFA),
		method("Logout", BlogServer.Logout),
		method("Feed", BlogServer.Feed),
		method("MyPosts", BlogServer.MyPosts),
		method("Search", BlogServer.Search),
		method("GetPost", BlogServer.GetPost),
		method("AddPost", BlogServer.AddPost),
		method("EditPost", BlogServer.EditPost),
		method("DeletePost", BlogServer.DeletePost),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "blog/v1/blog.proto",
}

// RegisterBlogServer registers srv on s.
func RegisterBlogServer(s grpc.ServiceRegistrar, srv BlogServer) {
	s.RegisterService(&ServiceDesc, srv)
}
