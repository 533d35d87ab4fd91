package quest

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("quest.service",
	fx.Provide(
		NewService,
		func(s *Service) Tracker { return s },
	),
	fx.Invoke(seedQuests),
)

func seedQuests(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Seed(ctx)
		},
	})
}
