package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

func TestReleaseMovesHeldFunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	releaseSvc := NewReleaseService(store, events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 50_000)
	txID := seedTransaction(t, db, accountID, 50_000, domain.TxStatusHeld, "ref-release-1")

	resp, err := releaseSvc.Release(ctx, ReleaseRequest{
		TransactionID: txID,
		Reason:        "work verified",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, resp.Status)
	assert.Equal(t, int64(50_000), resp.Amount)
	assert.Equal(t, int64(50_000), resp.Balance)
	assert.Equal(t, int64(0), resp.FrozenBalance)

	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(50_000), balance)
	assert.Equal(t, int64(0), frozen)
	assert.Equal(t, domain.TxStatusCompleted, transactionStatus(t, db, txID))

	var description string
	require.NoError(t, db.QueryRow(ctx,
		`SELECT description FROM escrow_transactions WHERE id = $1`, txID).Scan(&description))
	assert.True(t, strings.Contains(description, "Released: work verified"), description)
}

func TestReleaseIsExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	releaseSvc := NewReleaseService(store, events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 30_000)
	txID := seedTransaction(t, db, accountID, 30_000, domain.TxStatusHeld, "ref-release-2")

	_, err := releaseSvc.Release(ctx, ReleaseRequest{TransactionID: txID, Reason: "first"})
	require.NoError(t, err)

	_, err = releaseSvc.Release(ctx, ReleaseRequest{TransactionID: txID, Reason: "second"})
	require.ErrorIs(t, err, ErrTransactionNotHeld)

	// The replay must not double-credit.
	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(30_000), balance)
	assert.Equal(t, int64(0), frozen)
}

func TestReleaseRequiresReason(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	releaseSvc := NewReleaseService(repository.NewStore(db), events.NopPublisher{})

	accountID := seedAccount(t, db, 0, 10_000)
	txID := seedTransaction(t, db, accountID, 10_000, domain.TxStatusHeld, "ref-release-3")

	_, err := releaseSvc.Release(context.Background(), ReleaseRequest{TransactionID: txID, Reason: "  "})
	require.Error(t, err)
	assert.Equal(t, domain.TxStatusHeld, transactionStatus(t, db, txID))
}

func TestReleaseRejectsNonHeldTransaction(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	releaseSvc := NewReleaseService(repository.NewStore(db), events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)
	pendingID := seedTransaction(t, db, accountID, 10_000, domain.TxStatusPending, "ref-release-4")

	_, err := releaseSvc.Release(ctx, ReleaseRequest{TransactionID: pendingID, Reason: "early"})
	require.ErrorIs(t, err, ErrTransactionNotHeld)
}

func TestReleaseFailsWhenFrozenBalanceDiverged(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	releaseSvc := NewReleaseService(repository.NewStore(db), events.NopPublisher{})
	ctx := context.Background()

	// Frozen balance smaller than the held amount. The guard must refuse
	// rather than drive frozen_balance negative.
	accountID := seedAccount(t, db, 0, 1_000)
	txID := seedTransaction(t, db, accountID, 50_000, domain.TxStatusHeld, "ref-release-5")

	_, err := releaseSvc.Release(ctx, ReleaseRequest{TransactionID: txID, Reason: "broken"})
	require.ErrorIs(t, err, models.ErrInsufficientFrozenFunds)

	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(1_000), frozen)
	assert.Equal(t, domain.TxStatusHeld, transactionStatus(t, db, txID))
}

func TestRefundDropsHoldWithoutCredit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	releaseSvc := NewReleaseService(repository.NewStore(db), events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 5_000, 20_000)
	txID := seedTransaction(t, db, accountID, 20_000, domain.TxStatusHeld, "ref-refund-1")

	resp, err := releaseSvc.Refund(ctx, ReleaseRequest{TransactionID: txID, Reason: "dispute upheld"})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, resp.Status)

	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(5_000), balance, "refund must not credit the available balance")
	assert.Equal(t, int64(0), frozen)
	assert.Equal(t, domain.TxStatusFailed, transactionStatus(t, db, txID))

	var description string
	require.NoError(t, db.QueryRow(ctx,
		`SELECT description FROM escrow_transactions WHERE id = $1`, txID).Scan(&description))
	assert.Contains(t, description, "Refunded: dispute upheld")
}

func TestProcessDueReleases(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	releaseSvc := NewReleaseService(repository.NewStore(db), events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 70_000)
	dueID := seedTransaction(t, db, accountID, 40_000, domain.TxStatusHeld, "ref-auto-1")
	notDueID := seedTransaction(t, db, accountID, 30_000, domain.TxStatusHeld, "ref-auto-2")

	_, err := db.Exec(ctx, `
		UPDATE escrow_transactions SET auto_release = TRUE, release_due = $1 WHERE id = $2`,
		time.Now().Add(-time.Hour), dueID)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `
		UPDATE escrow_transactions SET auto_release = TRUE, release_due = $1 WHERE id = $2`,
		time.Now().Add(24*time.Hour), notDueID)
	require.NoError(t, err)

	released, err := releaseSvc.ProcessDueReleases(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	assert.Equal(t, domain.TxStatusCompleted, transactionStatus(t, db, dueID))
	assert.Equal(t, domain.TxStatusHeld, transactionStatus(t, db, notDueID))

	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(40_000), balance)
	assert.Equal(t, int64(30_000), frozen)

	var description string
	require.NoError(t, db.QueryRow(ctx,
		`SELECT description FROM escrow_transactions WHERE id = $1`, dueID).
		Scan(&description))
	assert.Contains(t, description, "Auto-released after 7 day hold period")

	// Second sweep finds nothing left to do.
	released, err = releaseSvc.ProcessDueReleases(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}
