package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// FleetServiceName is the fully qualified gRPC service name.
const FleetServiceName = "drone.fleet.v1.FleetService"

// FleetServiceServer is the server API of the Fleet service.
type FleetServiceServer interface {
	GetMission(context.Context, *GetMissionRequest) (*GetMissionResponse, error)
	ListDrones(context.Context, *ListDronesRequest) (*ListDronesResponse, error)
	CancelMission(context.Context, *CancelMissionRequest) (*CancelMissionResponse, error)
	ReportFault(context.Context, *ReportFaultRequest) (*ReportFaultResponse, error)
	GetAssignment(context.Context, *GetAssignmentRequest) (*GetAssignmentResponse, error)
}

func unary[Req, Resp any](method string, call func(FleetServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(FleetServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + FleetServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// FleetServiceDesc describes the Fleet service for grpc.Server.RegisterService.
var FleetServiceDesc = grpc.ServiceDesc{
	ServiceName: FleetServiceName,
	HandlerType: (*FleetServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetMission", FleetServiceServer.GetMission),
		unary("ListDrones", FleetServiceServer.ListDrones),
		unary("CancelMission", FleetServiceServer.CancelMission),
		unary("ReportFault", FleetServiceServer.ReportFault),
		unary("GetAssignment", FleetServiceServer.GetAssignment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "drone/fleet/v1/fleet",
}

// FleetClient calls the Fleet service with the JSON codec.
type FleetClient struct {
	cc grpc.ClientConnInterface
}

// NewFleetClient wraps a client connection.
func NewFleetClient(cc grpc.ClientConnInterface) *FleetClient {
	return &FleetClient{cc: cc}
}

func (c *FleetClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+FleetServiceName+"/"+method, in, out, opts...)
}

func (c *FleetClient) GetMission(ctx context.Context, in *GetMissionRequest, opts ...grpc.CallOption) (*GetMissionResponse, error) {
	out := new(GetMissionResponse)
	return out, c.invoke(ctx, "GetMission", in, out, opts)
}

func (c *FleetClient) ListDrones(ctx context.Context, in *ListDronesRequest, opts ...grpc.CallOption) (*ListDronesResponse, error) {
	out := new(ListDronesResponse)
	return out, c.invoke(ctx, "ListDrones", in, out, opts)
}

func (c *FleetClient) CancelMission(ctx context.Context, in *CancelMissionRequest, opts ...grpc.CallOption) (*CancelMissionResponse, error) {
	out := new(CancelMissionResponse)
	return out, c.invoke(ctx, "CancelMission", in, out, opts)
}

func (c *FleetClient) ReportFault(ctx context.Context, in *ReportFaultRequest, opts ...grpc.CallOption) (*ReportFaultResponse, error) {
	out := new(ReportFaultResponse)
	return out, c.invoke(ctx, "ReportFault", in, out, opts)
}

func (c *FleetClient) GetAssignment(ctx context.Context, in *GetAssignmentRequest, opts ...grpc.CallOption) (*GetAssignmentResponse, error) {
	out := new(GetAssignmentResponse)
	return out, c.invoke(ctx, "GetAssignment", in, out, opts)
}
