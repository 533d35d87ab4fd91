package migrate

import (
	"context"

	"smallbiznis-picks/services/claim"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/quest"
	"smallbiznis-picks/services/referral"
	"smallbiznis-picks/services/submission"
	"smallbiznis-picks/services/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates the schema while the app is being built, before any
// OnStart hook (quest seeding included) runs.
var Module = fx.Module("migrate", fx.Invoke(Run))

func Models() []any {
	var models []any
	for _, group := range [][]any{
		ledger.Models(),
		quest.Models(),
		task.Models(),
		submission.Models(),
		claim.Models(),
		referral.Models(),
	} {
		models = append(models, group...)
	}
	return models
}

func Run(db *gorm.DB) error {
	if err := db.WithContext(context.Background()).AutoMigrate(Models()...); err != nil {
		zap.L().Error("failed to migrate schema", zap.Error(err))
		return err
	}
	zap.L().Info("schema migrated", zap.Int("tables", len(Models())))
	return nil
}
