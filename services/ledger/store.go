package ledger

import (
	"context"
	"time"

	"smallbiznis-picks/pkg/db"
	"smallbiznis-picks/pkg/db/option"
	"smallbiznis-picks/pkg/repository"
	"smallbiznis-picks/pkg/uow"

	"gorm.io/gorm"
)

// store is the durable side of the ledger: accounts plus the append-only
// entry table whose unique index is the idempotency guarantee.
type store struct {
	accounts repository.Repository[Account]
	entries  repository.Repository[LedgerEntry]
}

func newStore(gdb *gorm.DB) *store {
	return &store{
		accounts: repository.ProvideStore[Account](gdb),
		entries:  repository.ProvideStore[LedgerEntry](gdb),
	}
}

func (s *store) findAccount(ctx context.Context, tx *gorm.DB, userID string) (*Account, error) {
	return s.accounts.WithTrx(tx).FindOne(ctx, &Account{UserID: userID})
}

// lockAccount reads the account row FOR UPDATE so concurrent mutations of the
// same user queue behind each other.
func (s *store) lockAccount(ctx context.Context, tx *gorm.DB, userID string) (*Account, error) {
	return s.accounts.WithTrx(tx).FindOne(ctx, &Account{UserID: userID}, option.WithLockingUpdate())
}

// openAccount creates a zero account unless one exists and returns the locked row.
func (s *store) openAccount(ctx context.Context, tx *gorm.DB, userID string) (*Account, error) {
	now := time.Now().UTC()
	if _, err := s.accounts.WithTrx(tx).CreateIgnoreConflict(ctx, &Account{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}
	return s.lockAccount(ctx, tx, userID)
}

func (s *store) findEntry(ctx context.Context, tx *gorm.DB, key idempotencyKey) (*LedgerEntry, error) {
	return s.entries.WithTrx(tx).FindOne(ctx, &LedgerEntry{
		ReferenceKind: key.ReferenceKind,
		ReferenceID:   key.ReferenceID,
		Kind:          key.Kind,
		UserID:        key.UserID,
	})
}

// insertEntry writes entry inside a savepoint. A unique violation is reported
// as inserted=false with the outer transaction still usable.
func (s *store) insertEntry(ctx context.Context, tx *gorm.DB, entry *LedgerEntry) (bool, error) {
	err := tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return s.entries.WithTrx(sp).Create(ctx, entry)
	})
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// advanceAccount stores next only if the account is still at version. A miss
// means another transaction moved the account first.
func (s *store) advanceAccount(ctx context.Context, tx *gorm.DB, version int64, next *Account) error {
	res := tx.WithContext(ctx).Model(&Account{}).
		Where("user_id = ? AND version = ?", next.UserID, version).
		Updates(map[string]any{
			"balance":         next.Balance,
			"reserved":        next.Reserved,
			"version":         next.Version,
			"last_entry_hash": next.LastEntryHash,
			"updated_at":      next.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return uow.ErrSerialization
	}
	return nil
}

func (s *store) listEntries(ctx context.Context, tx *gorm.DB, userID string, opts ...option.QueryOption) ([]*LedgerEntry, error) {
	return s.entries.WithTrx(tx).Find(ctx, &LedgerEntry{UserID: userID}, opts...)
}
