package ledger

import (
	"context"

	"google.golang.org/grpc/codes"
	health "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Check reports SERVING while the ledger database answers pings.
func (s *Service) Check(ctx context.Context, req *health.HealthCheckRequest) (*health.HealthCheckResponse, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, status.Error(codes.Internal, "db not ready")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &health.HealthCheckResponse{Status: health.HealthCheckResponse_NOT_SERVING}, nil
	}

	return &health.HealthCheckResponse{Status: health.HealthCheckResponse_SERVING}, nil
}

func (s *Service) Watch(req *health.HealthCheckRequest, srv health.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watch is not supported")
}
