package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// SelfHealServiceName is the fully-qualified gRPC service name.
const SelfHealServiceName = "selfheal.v1.SelfHeal"

const (
	detectFullMethod    = "/" + SelfHealServiceName + "/Detect"
	modelInfoFullMethod = "/" + SelfHealServiceName + "/ModelInfo"
)

// SelfHealServer is the server API for selfheal.v1.SelfHeal. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type SelfHealServer interface {
	Detect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ModelInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SelfHealServiceDesc describes selfheal.v1.SelfHeal for grpc.Server registration.
var SelfHealServiceDesc = grpc.ServiceDesc{
	ServiceName: SelfHealServiceName,
	HandlerType: (*SelfHealServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: detectHandler},
		{MethodName: "ModelInfo", Handler: modelInfoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "selfheal/v1/selfheal.proto",
}

// RegisterSelfHealServer registers srv on s.
func RegisterSelfHealServer(s grpc.ServiceRegistrar, srv SelfHealServer) {
	s.RegisterService(&SelfHealServiceDesc, srv)
}

func detectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SelfHealServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SelfHealServer).Detect(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func modelInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SelfHealServer).ModelInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: modelInfoFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SelfHealServer).ModelInfo(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SelfHealClient calls selfheal.v1.SelfHeal.
type SelfHealClient struct {
	cc grpc.ClientConnInterface
}

// NewSelfHealClient wraps a client connection.
func NewSelfHealClient(cc grpc.ClientConnInterface) *SelfHealClient {
	return &SelfHealClient{cc: cc}
}

// Detect runs detection remotely.
func (c *SelfHealClient) Detect(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, detectFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ModelInfo fetches registry status remotely.
func (c *SelfHealClient) ModelInfo(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, modelInfoFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
