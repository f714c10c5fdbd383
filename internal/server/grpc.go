// Package server assembles the HTTP API and the gRPC health endpoint.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	return grpc.NewServer(opts...)
}

// RegisterServices registers the gRPC services with s. Only the standard health service is
// exposed; the auth flows are served over HTTP.
func RegisterServices(s grpc.ServiceRegistrar, health healthpb.HealthServer) {
	if health != nil {
		healthpb.RegisterHealthServer(s, health)
	}
}
