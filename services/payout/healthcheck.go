package payout

import (
	"context"

	"creatorpay/pkg/errutil"
	"creatorpay/pkg/health"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name probes may ask for besides "".
const ServiceName = "creatorpay.payout"

// HealthServer answers grpc.health.v1 probes from the worker's dependency
// checks, so orchestrators can probe a process that serves no HTTP.
type HealthServer struct {
	healthpb.UnimplementedHealthServer
	checker health.HealthService
}

func NewHealthServer(checker health.HealthService) *HealthServer {
	return &HealthServer{checker: checker}
}

func RegisterHealthServer(srv *grpc.Server, h *HealthServer) {
	healthpb.RegisterHealthServer(srv, h)
}

func (h *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, errutil.NotFound("unknown service: "+svc, nil)
	}
	if h.checker.Check(ctx).Status != "healthy" {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func (h *HealthServer) Watch(*healthpb.HealthCheckRequest, healthpb.Health_WatchServer) error {
	return errutil.New(errutil.StatusNotImplemented, "watch is not supported")
}
