package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

func TestClearPendingFailsOnlyPendingRows(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewCleanupService(repository.NewStore(db), events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 2_000, 15_000)
	pendingA := seedTransaction(t, db, accountID, 5_000, domain.TxStatusPending, "ref-clear-a")
	pendingB := seedTransaction(t, db, accountID, 7_000, domain.TxStatusPending, "ref-clear-b")
	heldID := seedTransaction(t, db, accountID, 15_000, domain.TxStatusHeld, "ref-clear-held")
	completedID := seedTransaction(t, db, accountID, 3_000, domain.TxStatusCompleted, "ref-clear-done")

	resp, err := svc.ClearPending(ctx, accountID, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{pendingA, pendingB}, resp.Cleared)

	assert.Equal(t, domain.TxStatusFailed, transactionStatus(t, db, pendingA))
	assert.Equal(t, domain.TxStatusFailed, transactionStatus(t, db, pendingB))
	assert.Equal(t, domain.TxStatusHeld, transactionStatus(t, db, heldID))
	assert.Equal(t, domain.TxStatusCompleted, transactionStatus(t, db, completedID))

	// Pending transactions never captured funds; the sweep moves no balances.
	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(2_000), balance)
	assert.Equal(t, int64(15_000), frozen)
}

func TestCancelPending(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewCleanupService(repository.NewStore(db), events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 1_000, 8_000)
	pendingID := seedTransaction(t, db, accountID, 4_000, domain.TxStatusPending, "ref-cancel-pending")
	heldID := seedTransaction(t, db, accountID, 8_000, domain.TxStatusHeld, "ref-cancel-held")

	cancelled, err := svc.CancelPending(ctx, pendingID, nil)
	require.NoError(t, err)
	assert.Equal(t, pendingID, cancelled.ID)
	assert.Equal(t, domain.TxStatusFailed, cancelled.Status)

	// Captured funds cannot be cancelled away; that path is refund.
	_, err = svc.CancelPending(ctx, heldID, nil)
	require.ErrorIs(t, err, ErrTransactionNotPending)

	_, err = svc.CancelPending(ctx, pendingID, nil)
	require.ErrorIs(t, err, ErrTransactionNotPending, "cancel is not repeatable once terminal")

	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(1_000), balance)
	assert.Equal(t, int64(8_000), frozen)

	_, err = svc.CancelPending(ctx, uuid.New(), nil)
	require.ErrorIs(t, err, models.ErrTransactionNotFound)
}

func TestClearPendingEmptyAccount(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewCleanupService(repository.NewStore(db), events.NopPublisher{})

	accountID := seedAccount(t, db, 0, 0)
	resp, err := svc.ClearPending(context.Background(), accountID, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Cleared)
}

func TestClearPendingUnknownAccount(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewCleanupService(repository.NewStore(db), events.NopPublisher{})

	_, err := svc.ClearPending(context.Background(), uuid.New(), nil)
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}
