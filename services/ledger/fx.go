package ledger

import (
	"go.uber.org/fx"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health/grpc_health_v1"
)

var Module = fx.Module("ledger.service",
	fx.Provide(
		NewService,
		func(s *Service) Ledger { return s },
	),
	fx.Invoke(registerHealthServer),
)

func registerHealthServer(server *grpc.Server, service *Service) {
	health.RegisterHealthServer(server, service)
}
