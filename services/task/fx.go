package task

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Catalog is the slice of the task service the submission flow needs while
// it holds a unit of work open.
type Catalog interface {
	Get(ctx context.Context, tx *gorm.DB, taskID string) (*Task, error)
	Lock(ctx context.Context, tx *gorm.DB, taskID string) (*Task, error)
	MarkConsumed(ctx context.Context, tx *gorm.DB, taskID string) error
}

var Module = fx.Module("task.service",
	fx.Provide(
		NewService,
		func(s *Service) Catalog { return s },
	),
)
