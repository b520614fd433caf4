package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "homesim.ActuatorService"

// Method names.
const (
	MethodControlLightBulb = "ControlLightBulb"
	MethodControlAC        = "ControlAC"
	MethodControlSprinkler = "ControlSprinkler"
	MethodControlDoor      = "ControlDoor"
)

// ActuatorServer is implemented by actuator processes. Each actuator
// serves the method for its own subtype and leaves the rest to
// UnimplementedActuatorServer.
type ActuatorServer interface {
	ControlLightBulb(ctx context.Context, req *LightBulbRequest) (*Response, error)
	ControlAC(ctx context.Context, req *ACRequest) (*Response, error)
	ControlSprinkler(ctx context.Context, req *SprinklerRequest) (*Response, error)
	ControlDoor(ctx context.Context, req *DoorRequest) (*Response, error)
}

// UnimplementedActuatorServer answers every method with codes.Unimplemented.
// Embed it to serve a subset of the methods.
type UnimplementedActuatorServer struct{}

func (UnimplementedActuatorServer) ControlLightBulb(context.Context, *LightBulbRequest) (*Response, error) {
	return nil, status.Error(codes.Unimplemented, "method ControlLightBulb not implemented")
}

func (UnimplementedActuatorServer) ControlAC(context.Context, *ACRequest) (*Response, error) {
	return nil, status.Error(codes.Unimplemented, "method ControlAC not implemented")
}

func (UnimplementedActuatorServer) ControlSprinkler(context.Context, *SprinklerRequest) (*Response, error) {
	return nil, status.Error(codes.Unimplemented, "method ControlSprinkler not implemented")
}

func (UnimplementedActuatorServer) ControlDoor(context.Context, *DoorRequest) (*Response, error) {
	return nil, status.Error(codes.Unimplemented, "method ControlDoor not implemented")
}

// ServiceDesc describes homesim.ActuatorService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ActuatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: MethodControlLightBulb,
			Handler: unaryHandler(MethodControlLightBulb, func(s ActuatorServer, ctx context.Context, req *LightBulbRequest) (*Response, error) {
				return s.ControlLightBulb(ctx, req)
			}),
		},
		{
			MethodName: MethodControlAC,
			Handler: unaryHandler(MethodControlAC, func(s ActuatorServer, ctx context.Context, req *ACRequest) (*Response, error) {
				return s.ControlAC(ctx, req)
			}),
		},
		{
			MethodName: MethodControlSprinkler,
			Handler: unaryHandler(MethodControlSprinkler, func(s ActuatorServer, ctx context.Context, req *SprinklerRequest) (*Response, error) {
				return s.ControlSprinkler(ctx, req)
			}),
		},
		{
			MethodName: MethodControlDoor,
			Handler: unaryHandler(MethodControlDoor, func(s ActuatorServer, ctx context.Context, req *DoorRequest) (*Response, error) {
				return s.ControlDoor(ctx, req)
			}),
		},
	},
	Metadata: "homesim/actuator",
}

// RegisterActuatorServer registers srv on s.
func RegisterActuatorServer(s grpc.ServiceRegistrar, srv ActuatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// fullMethod returns the gRPC path of a method.
func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryHandler adapts a typed method to grpc.MethodHandler.
func unaryHandler[Req any](method string, call func(ActuatorServer, context.Context, *Req) (*Response, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ActuatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ActuatorServer), ctx, req.(*Req))
		})
	}
}
