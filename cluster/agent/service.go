// Package agent serves a HostCluster over gRPC, so that it can be driven from another
// process, usually spawned at a remote host and talking over its stdin / stdout.
package agent

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "roam.agent.v1.Agent"

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// service is what the Agent gRPC service calls into. Messages are protobuf well known
// types, so no code generation is needed.
type service interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	PutResource(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	// CallMethod takes {key, method, args}.
	CallMethod(context.Context, *structpb.Struct) (*structpb.Value, error)
	InstallPackages(context.Context, *structpb.ListValue) (*emptypb.Empty, error)
	Run(context.Context, *structpb.ListValue) (*structpb.ListValue, error)
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

func unary[Req, Resp proto.Message](
	method string, newReq func() Req, call func(service, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := newReq()
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(service), ctx, req)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(service), ctx, req.(Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", func() *emptypb.Empty { return &emptypb.Empty{} }, service.Ping),
		unary("PutResource", func() *structpb.Struct { return &structpb.Struct{} }, service.PutResource),
		unary("CallMethod", func() *structpb.Struct { return &structpb.Struct{} }, service.CallMethod),
		unary("InstallPackages", func() *structpb.ListValue { return &structpb.ListValue{} }, service.InstallPackages),
		unary("Run", func() *structpb.ListValue { return &structpb.ListValue{} }, service.Run),
		unary("Shutdown", func() *emptypb.Empty { return &emptypb.Empty{} }, service.Shutdown),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "roam/agent/v1/agent.proto",
}
