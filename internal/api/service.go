package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name of a node.
const ServiceName = "benor.v1.Node"

const (
	Node_Status_FullMethodName   = "/" + ServiceName + "/Status"
	Node_Start_FullMethodName    = "/" + ServiceName + "/Start"
	Node_Stop_FullMethodName     = "/" + ServiceName + "/Stop"
	Node_GetState_FullMethodName = "/" + ServiceName + "/GetState"
	Node_Message_FullMethodName  = "/" + ServiceName + "/Message"
)

// NodeClient is the client API for the node service.
type NodeClient interface {
	Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Start(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Stop(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetState(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Message(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type nodeClient struct {
	cc grpc.ClientConnInterface
}

// NewNodeClient wraps a connection to a node.
func NewNodeClient(cc grpc.ClientConnInterface) NodeClient {
	return &nodeClient{cc}
}

func (c *nodeClient) Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, Node_Status_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Start(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, Node_Start_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Stop(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Node_Stop_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) GetState(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Node_GetState_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Message(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, Node_Message_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NodeServer is the server API for the node service.
type NodeServer interface {
	Status(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Start(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Stop(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Message(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
}

// UnimplementedNodeServer can be embedded to have forward compatible implementations.
type UnimplementedNodeServer struct{}

func (UnimplementedNodeServer) Status(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}
func (UnimplementedNodeServer) Start(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Start not implemented")
}
func (UnimplementedNodeServer) Stop(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Stop not implemented")
}
func (UnimplementedNodeServer) GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetState not implemented")
}
func (UnimplementedNodeServer) Message(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Message not implemented")
}

// RegisterNodeServer registers srv on s.
func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&Node_ServiceDesc, srv)
}

func _Node_Status_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Node_Status_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_Start_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).Start(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Node_Start_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Start(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_Stop_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).Stop(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Node_Stop_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Stop(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_GetState_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).GetState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Node_GetState_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).GetState(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_Message_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).Message(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Node_Message_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Message(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Node_ServiceDesc is the grpc.ServiceDesc for the node service.
// The payloads are protobuf well-known types, so no generated code is needed.
var Node_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: _Node_Status_Handler},
		{MethodName: "Start", Handler: _Node_Start_Handler},
		{MethodName: "Stop", Handler: _Node_Stop_Handler},
		{MethodName: "GetState", Handler: _Node_GetState_Handler},
		{MethodName: "Message", Handler: _Node_Message_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: ProtoFile,
}
