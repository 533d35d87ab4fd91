package uow

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type note struct {
	ID string `gorm:"primaryKey"`
}

func newCoordinator(t *testing.T, retries uint64) (*Coordinator, *gorm.DB) {
	db := testutil.NewTestDB(t, &note{})
	return NewCoordinator(db, config.Ledger{
		MaxRetries:           retries,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
	}), db
}

func countNotes(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&note{}).Count(&n).Error)
	return n
}

func TestDoCommitsEveryStep(t *testing.T) {
	c, db := newCoordinator(t, 3)

	err := c.Do(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(&note{ID: "a"}).Error; err != nil {
			return err
		}
		return tx.Create(&note{ID: "b"}).Error
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), countNotes(t, db))
}

func TestDoRollsBackOnError(t *testing.T) {
	c, db := newCoordinator(t, 3)
	boom := errors.New("second leg failed")

	attempts := 0
	err := c.Do(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&note{ID: "a"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, attempts)
	require.Zero(t, countNotes(t, db))
}

func TestDoRetriesConflicts(t *testing.T) {
	c, db := newCoordinator(t, 3)

	attempts := 0
	err := c.Do(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&note{ID: "a"}).Error; err != nil {
			return err
		}
		if attempts < 3 {
			return ErrSerialization
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, int64(1), countNotes(t, db))
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	c, db := newCoordinator(t, 2)

	attempts := 0
	err := c.Do(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&note{ID: "a"}).Error; err != nil {
			return err
		}
		return ErrSerialization
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, errutil.StatusServiceUnavailable, errutil.StatusOf(err))
	require.True(t, errutil.StatusOf(err).Retryable())
	require.Zero(t, countNotes(t, db))
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	c, _ := newCoordinator(t, 5)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := c.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		attempts++
		cancel()
		return ErrSerialization
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestParseIsolation(t *testing.T) {
	require.Equal(t, sql.LevelSerializable, ParseIsolation(""))
	require.Equal(t, sql.LevelSerializable, ParseIsolation("serializable"))
	require.Equal(t, sql.LevelReadCommitted, ParseIsolation("read_committed"))
	require.Equal(t, sql.LevelRepeatableRead, ParseIsolation("Repeatable Read"))
	require.Equal(t, sql.LevelDefault, ParseIsolation("default"))
}
