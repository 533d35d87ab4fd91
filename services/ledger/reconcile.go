package ledger

import (
	"context"

	"smallbiznis-picks/pkg/db/option"
	"smallbiznis-picks/pkg/db/pagination"
	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var sequenceOrder = map[string]bool{"sequence": true}

// ListEntries pages through a user's entries, newest first.
func (s *Service) ListEntries(ctx context.Context, userID string, page pagination.Pagination) ([]*LedgerEntry, *pagination.PageInfo, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.ListEntries", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	page = page.Normalize()
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "desc", Allow: sequenceOrder}),
		option.ApplyPagination(page),
	}

	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "sequence", Operator: option.LT, Value: cursor.Sequence}))
	}

	entries, err := s.store.listEntries(ctx, nil, userID, opts...)
	if err != nil {
		logger.FromContext(ctx).Error("failed to query list entries", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, err
	}

	entries, info := pagination.BuildCursorPageInfo(entries, page.Limit, func(e *LedgerEntry) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{Sequence: e.Sequence})
		return c
	})

	return entries, info, nil
}

// Report is the outcome of replaying an account's ledger.
type Report struct {
	UserID     string          `json:"user_id"`
	Valid      bool            `json:"valid"`
	ChainValid bool            `json:"chain_valid"`
	BrokenAt   int64           `json:"broken_at,omitempty"`
	Entries    int             `json:"entries"`
	Replayed   BalanceSnapshot `json:"replayed"`
	Stored     BalanceSnapshot `json:"stored"`
}

// Reconcile rebuilds the account from its entries, verifies the hash chain
// and compares the result with the stored account row.
func (s *Service) Reconcile(ctx context.Context, userID string) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Reconcile", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	// account row and entries come from one snapshot so a concurrent
	// mutation cannot land between the two reads
	var (
		account *Account
		entries []*LedgerEntry
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		account, err = s.store.findAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account == nil {
			return accountNotFound(userID)
		}

		entries, err = s.store.listEntries(ctx, tx, userID,
			option.WithSortBy(option.QuerySortBy{SortBy: "sequence", OrderBy: "asc", Allow: sequenceOrder}),
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		UserID:     userID,
		ChainValid: true,
		Entries:    len(entries),
		Stored:     snapshotOf(account),
	}

	replayed := Account{UserID: userID}
	previous := GenesisHash
	for i, e := range entries {
		if report.ChainValid && (e.Sequence != int64(i+1) || e.PreviousHash != previous || e.GenerateHash() != e.Hash) {
			report.ChainValid = false
			report.BrokenAt = e.Sequence
		}
		previous = e.Hash
		replayed = mutation{amount: e.Amount, kind: e.Kind}.applyTo(replayed)
	}
	replayed.Version = int64(len(entries))
	report.Replayed = snapshotOf(&replayed)

	headMatches := account.Version == replayed.Version
	if len(entries) > 0 {
		headMatches = headMatches && account.LastEntryHash == previous
	}

	report.Valid = report.ChainValid && headMatches && report.Replayed == report.Stored
	if !report.Valid {
		logger.FromContext(ctx).Warn("ledger reconciliation mismatch",
			zap.String("user_id", userID),
			zap.Bool("chain_valid", report.ChainValid),
			zap.Int64("broken_at", report.BrokenAt),
			zap.Any("replayed", report.Replayed),
			zap.Any("stored", report.Stored),
		)
	}

	return report, nil
}
