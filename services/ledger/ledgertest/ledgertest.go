// Package ledgertest builds a real ledger on a test database for the
// orchestrator tests.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/points"
	"smallbiznis-picks/pkg/uow"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/testutil"
)

type Env struct {
	DB     *gorm.DB
	Node   *snowflake.Node
	UoW    *uow.Coordinator
	Ledger *ledger.Service
}

// New opens a test database holding the ledger tables plus models.
func New(t *testing.T, models ...any) *Env {
	t.Helper()

	db := testutil.NewTestDB(t, append(ledger.Models(), models...)...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	coordinator := uow.NewCoordinator(db, config.Ledger{
		MaxRetries:           2,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
	})

	svc, err := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, UoW: coordinator})
	require.NoError(t, err)

	return &Env{DB: db, Node: node, UoW: coordinator, Ledger: svc}
}

// Fund credits amount to userID under an admin adjustment.
func (e *Env) Fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := e.Ledger.Credit(context.Background(), nil, userID, points.Amount(amount), ledger.Reference{
		Kind:        ledger.RefAdminAdjustment,
		ReferenceID: "fund-" + userID,
	})
	require.NoError(t, err)
}

// Balance returns the snapshot of userID, or a zero snapshot when the account
// does not exist yet.
func (e *Env) Balance(t *testing.T, userID string) ledger.BalanceSnapshot {
	t.Helper()
	snap, err := e.Ledger.GetBalance(context.Background(), nil, userID)
	if err != nil {
		require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		return ledger.BalanceSnapshot{UserID: userID}
	}
	return snap
}

// Entries counts the ledger entries written for userID.
func (e *Env) Entries(t *testing.T, userID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.DB.Model(&ledger.LedgerEntry{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}
