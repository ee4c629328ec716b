package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

func TestReconciliationRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	queries := repository.New(db)
	reconcileSvc := NewReconciliationService(repository.NewStore(db))

	balancedID := seedAccount(t, db, 10_000, 40_000)
	seedTransaction(t, db, balancedID, 40_000, domain.TxStatusHeld, "rec-held")
	seedTransaction(t, db, balancedID, 5_000, domain.TxStatusCompleted, "rec-done")

	require.NoError(t, reconcileSvc.Run(ctx))
	net, err := queries.GetFrozenNet(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(40_000), net.TotalFrozen)
	require.Equal(t, net.TotalFrozen, net.TotalHeld)

	imbalances, err := queries.GetFrozenImbalances(ctx)
	require.NoError(t, err)
	require.Empty(t, imbalances)

	// Frozen balance no longer backed by a HELD transaction.
	divergedID := seedAccount(t, db, 0, 7_500)

	require.NoError(t, reconcileSvc.Run(ctx))
	net, err = queries.GetFrozenNet(ctx)
	require.NoError(t, err)
	require.NotEqual(t, net.TotalHeld, net.TotalFrozen)

	imbalances, err = queries.GetFrozenImbalances(ctx)
	require.NoError(t, err)
	require.Len(t, imbalances, 1)
	require.Equal(t, divergedID, repository.FromPgUUID(imbalances[0].AccountID))
	require.Equal(t, int64(7_500), imbalances[0].FrozenBalance)
	require.Equal(t, int64(0), imbalances[0].HeldTotal)
}
