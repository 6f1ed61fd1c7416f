package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"droneMissionEngine/internal/auth"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// NewServer builds a gRPC server with the auth interceptor, the Fleet service and health checks.
func NewServer(secret string, fleet FleetServiceServer) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(auth.NewUnaryAuthInterceptor(secret, healthCheckMethod)))
	srv.RegisterService(&FleetServiceDesc, fleet)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(FleetServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// StartGRPC serves srv on addr and returns a shutdown function.
// Shutdown drains in-flight calls and falls back to a hard stop when ctx expires.
func StartGRPC(addr string, srv *grpc.Server, hs *health.Server) (func(context.Context) error, error) {
	if addr == "" {
		addr = ":50051"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() { _ = srv.Serve(lis) }()

	return func(ctx context.Context) error {
		if hs != nil {
			hs.Shutdown()
		}
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
