// ABOUTME: gRPC health service for orchestrators probing the gateway
// ABOUTME: Reports SERVING until shutdown begins

package gateway

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the named service reported alongside the overall status.
const HealthServiceName = "stingray.Gateway"

func registerHealthService(server *grpc.Server) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return hs
}
