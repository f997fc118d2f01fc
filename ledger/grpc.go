package ledger

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service definitions for the ledger gateway's command and user
// management services.
//
// Requests and responses are protobuf Struct messages carrying the JSON
// shape documented in proto.go, so this package does not require a
// protoc/codegen toolchain.

const (
	commandServiceName = "licenseworks.ledger.v1.CommandService"
	userServiceName    = "licenseworks.ledger.v1.UserManagementService"

	methodSubmit        = "/" + commandServiceName + "/Submit"
	methodSubmitAndWait = "/" + commandServiceName + "/SubmitAndWaitForTransactionTree"

	methodGrantUserRights = "/" + userServiceName + "/GrantUserRights"
	methodListUsers       = "/" + userServiceName + "/ListUsers"
	methodListUserRights  = "/" + userServiceName + "/ListUserRights"
	methodGetUser         = "/" + userServiceName + "/GetUser"
)

// CommandServer is the server API for the command service.
type CommandServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitAndWaitForTransactionTree(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedCommandServer can be embedded for forward compatibility.
type UnimplementedCommandServer struct{}

func (UnimplementedCommandServer) Submit(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Submit not implemented")
}
func (UnimplementedCommandServer) SubmitAndWaitForTransactionTree(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitAndWaitForTransactionTree not implemented")
}

// RegisterCommandServer registers the command service on a gRPC server.
func RegisterCommandServer(s grpc.ServiceRegistrar, srv CommandServer) {
	s.RegisterService(&Command_ServiceDesc, srv)
}

// UserServer is the server API for the user management service.
type UserServer interface {
	GrantUserRights(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListUsers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListUserRights(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedUserServer can be embedded for forward compatibility.
type UnimplementedUserServer struct{}

func (UnimplementedUserServer) GrantUserRights(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GrantUserRights not implemented")
}
func (UnimplementedUserServer) ListUsers(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListUsers not implemented")
}
func (UnimplementedUserServer) ListUserRights(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListUserRights not implemented")
}
func (UnimplementedUserServer) GetUser(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetUser not implemented")
}

// RegisterUserServer registers the user management service.
func RegisterUserServer(s grpc.ServiceRegistrar, srv UserServer) {
	s.RegisterService(&User_ServiceDesc, srv)
}

// commandClient is the client API for the command service.
type commandClient interface {
	Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SubmitAndWaitForTransactionTree(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type commandClientImpl struct{ cc grpc.ClientConnInterface }

func newCommandClient(cc grpc.ClientConnInterface) commandClient { return &commandClientImpl{cc: cc} }

func (c *commandClientImpl) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodSubmit, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *commandClientImpl) SubmitAndWaitForTransactionTree(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodSubmitAndWait, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// userClient is the client API for the user management service.
type userClient interface {
	GrantUserRights(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListUsers(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListUserRights(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetUser(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type userClientImpl struct{ cc grpc.ClientConnInterface }

func newUserClient(cc grpc.ClientConnInterface) userClient { return &userClientImpl{cc: cc} }

func (c *userClientImpl) GrantUserRights(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGrantUserRights, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *userClientImpl) ListUsers(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListUsers, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *userClientImpl) ListUserRights(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListUserRights, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *userClientImpl) GetUser(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetUser, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func unaryHandler(method string, call func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Command_ServiceDesc is the grpc.ServiceDesc for the command service.
var Command_ServiceDesc = grpc.ServiceDesc{
	ServiceName: commandServiceName,
	HandlerType: (*CommandServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Submit",
			Handler: unaryHandler(methodSubmit, func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(CommandServer).Submit(ctx, in)
			}),
		},
		{
			MethodName: "SubmitAndWaitForTransactionTree",
			Handler: unaryHandler(methodSubmitAndWait, func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(CommandServer).SubmitAndWaitForTransactionTree(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger.proto",
}

// User_ServiceDesc is the grpc.ServiceDesc for the user management service.
var User_ServiceDesc = grpc.ServiceDesc{
	ServiceName: userServiceName,
	HandlerType: (*UserServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GrantUserRights",
			Handler: unaryHandler(methodGrantUserRights, func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(UserServer).GrantUserRights(ctx, in)
			}),
		},
		{
			MethodName: "ListUsers",
			Handler: unaryHandler(methodListUsers, func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(UserServer).ListUsers(ctx, in)
			}),
		},
		{
			MethodName: "ListUserRights",
			Handler: unaryHandler(methodListUserRights, func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(UserServer).ListUserRights(ctx, in)
			}),
		},
		{
			MethodName: "GetUser",
			Handler: unaryHandler(methodGetUser, func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(UserServer).GetUser(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger.proto",
}
