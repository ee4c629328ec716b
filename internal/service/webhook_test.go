package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

const testHMACKey = "webhook-test-key"

func signPayload(payload []byte) string {
	h := hmac.New(sha256.New, []byte(testHMACKey))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func capturePayload(t *testing.T, reference string, amount int64, status string) []byte {
	t.Helper()
	payload, err := json.Marshal(CaptureWebhookPayload{
		Reference: reference,
		Amount:    amount,
		Status:    status,
	})
	require.NoError(t, err)
	return payload
}

func TestCaptureWebhookRejectsBadSignature(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWebhookService(repository.NewStore(db), testHMACKey, false, events.NopPublisher{})

	payload := capturePayload(t, "ref-sig", 10_000, "captured")
	_, err := svc.HandleCaptureWebhook(context.Background(), payload, "sha256=deadbeef")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestCaptureWebhookHoldsFunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWebhookService(repository.NewStore(db), testHMACKey, false, events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)
	txID := seedTransaction(t, db, accountID, 25_000, domain.TxStatusPending, "ref-capture-1")

	payload := capturePayload(t, "ref-capture-1", 25_000, "captured")
	resp, err := svc.HandleCaptureWebhook(ctx, payload, signPayload(payload))
	require.NoError(t, err)
	assert.Equal(t, txID, resp.TransactionID)
	assert.Equal(t, domain.TxStatusHeld, resp.Status)

	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(25_000), frozen)

	var heldAt *time.Time
	var releaseDue *time.Time
	require.NoError(t, db.QueryRow(ctx,
		`SELECT held_at, release_due FROM escrow_transactions WHERE id = $1`, txID).
		Scan(&heldAt, &releaseDue))
	require.NotNil(t, heldAt)
	assert.Nil(t, releaseDue, "manual-release transactions get no deadline")
}

func TestCaptureWebhookSetsAutoReleaseDeadline(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWebhookService(repository.NewStore(db), testHMACKey, false, events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)
	txID := seedTransaction(t, db, accountID, 12_000, domain.TxStatusPending, "ref-capture-auto")
	_, err := db.Exec(ctx, `UPDATE escrow_transactions SET auto_release = TRUE WHERE id = $1`, txID)
	require.NoError(t, err)

	payload := capturePayload(t, "ref-capture-auto", 12_000, "captured")
	_, err = svc.HandleCaptureWebhook(ctx, payload, signPayload(payload))
	require.NoError(t, err)

	var heldAt, releaseDue *time.Time
	require.NoError(t, db.QueryRow(ctx,
		`SELECT held_at, release_due FROM escrow_transactions WHERE id = $1`, txID).
		Scan(&heldAt, &releaseDue))
	require.NotNil(t, heldAt)
	require.NotNil(t, releaseDue)

	// No rule for the purpose, so the default window applies.
	want := heldAt.Add(time.Duration(domain.DefaultAutoReleaseDays) * 24 * time.Hour)
	assert.WithinDuration(t, want, *releaseDue, time.Second)
}

func TestCaptureWebhookFailureKeepsBalances(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWebhookService(repository.NewStore(db), testHMACKey, false, events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)
	txID := seedTransaction(t, db, accountID, 8_000, domain.TxStatusPending, "ref-capture-fail")

	payload := capturePayload(t, "ref-capture-fail", 8_000, "failed")
	resp, err := svc.HandleCaptureWebhook(ctx, payload, signPayload(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, resp.Status)

	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(0), frozen)
	assert.Equal(t, domain.TxStatusFailed, transactionStatus(t, db, txID))
}

func TestCaptureWebhookReplayIsAcknowledged(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWebhookService(repository.NewStore(db), testHMACKey, false, events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)
	seedTransaction(t, db, accountID, 15_000, domain.TxStatusPending, "ref-capture-replay")

	payload := capturePayload(t, "ref-capture-replay", 15_000, "captured")
	_, err := svc.HandleCaptureWebhook(ctx, payload, signPayload(payload))
	require.NoError(t, err)

	resp, err := svc.HandleCaptureWebhook(ctx, payload, signPayload(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusHeld, resp.Status)
	assert.Equal(t, "Capture already processed", resp.Message)

	// Funds held once, not twice.
	_, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(15_000), frozen)
}

// racingCaptureStore commits a competing capture right before the hold
// transaction begins, reproducing two deliveries of the same webhook where
// the second reads PENDING before the first commits.
type racingCaptureStore struct {
	*repository.Store
	db        *pgxpool.Pool
	txID      uuid.UUID
	accountID uuid.UUID
	amount    int64
	fired     bool
}

func (s *racingCaptureStore) RunInTx(ctx context.Context, fn func(q *repository.Queries) error) error {
	if !s.fired {
		s.fired = true
		if _, err := s.db.Exec(ctx,
			`UPDATE escrow_transactions SET status = 'HELD', held_at = NOW(), updated_at = NOW() WHERE id = $1`,
			s.txID); err != nil {
			return err
		}
		if _, err := s.db.Exec(ctx,
			`UPDATE escrow_accounts SET frozen_balance = frozen_balance + $1, updated_at = NOW() WHERE id = $2`,
			s.amount, s.accountID); err != nil {
			return err
		}
	}
	return s.Store.RunInTx(ctx, fn)
}

func TestCaptureWebhookConcurrentDeliveryHoldsOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	accountID := seedAccount(t, db, 0, 0)
	txID := seedTransaction(t, db, accountID, 25_000, domain.TxStatusPending, "ref-capture-race")

	store := &racingCaptureStore{
		Store:     repository.NewStore(db),
		db:        db,
		txID:      txID,
		accountID: accountID,
		amount:    25_000,
	}
	svc := NewWebhookService(store, testHMACKey, false, events.NopPublisher{})

	// This delivery saw PENDING on its reference lookup, but the competing
	// delivery commits first. The in-transaction status check must turn it
	// into a replay instead of freezing the funds again.
	payload := capturePayload(t, "ref-capture-race", 25_000, "captured")
	resp, err := svc.HandleCaptureWebhook(ctx, payload, signPayload(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusHeld, resp.Status)
	assert.Equal(t, "Capture already processed", resp.Message)

	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(25_000), frozen, "funds held exactly once")
}

func TestCaptureWebhookLateFailureAfterCapture(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	accountID := seedAccount(t, db, 0, 0)
	txID := seedTransaction(t, db, accountID, 6_000, domain.TxStatusPending, "ref-capture-late-fail")

	store := &racingCaptureStore{
		Store:     repository.NewStore(db),
		db:        db,
		txID:      txID,
		accountID: accountID,
		amount:    6_000,
	}
	svc := NewWebhookService(store, testHMACKey, false, events.NopPublisher{})

	// A failure delivery racing a successful capture must not clobber the
	// HELD transaction or strand its frozen funds.
	payload := capturePayload(t, "ref-capture-late-fail", 6_000, "failed")
	resp, err := svc.HandleCaptureWebhook(ctx, payload, signPayload(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusHeld, resp.Status)
	assert.Equal(t, "Capture already processed", resp.Message)

	assert.Equal(t, domain.TxStatusHeld, transactionStatus(t, db, txID))
	_, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(6_000), frozen)
}

func TestCaptureWebhookAmountMismatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWebhookService(repository.NewStore(db), testHMACKey, false, events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)
	txID := seedTransaction(t, db, accountID, 9_000, domain.TxStatusPending, "ref-capture-mismatch")

	payload := capturePayload(t, "ref-capture-mismatch", 9_999, "captured")
	_, err := svc.HandleCaptureWebhook(ctx, payload, signPayload(payload))
	require.ErrorIs(t, err, ErrCapturePayloadMismatch)
	assert.Equal(t, domain.TxStatusPending, transactionStatus(t, db, txID))
}

func TestCaptureWebhookUnknownReference(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewWebhookService(repository.NewStore(db), testHMACKey, false, events.NopPublisher{})

	payload := capturePayload(t, "ref-missing", 1_000, "captured")
	_, err := svc.HandleCaptureWebhook(context.Background(), payload, signPayload(payload))
	require.ErrorIs(t, err, models.ErrTransactionNotFound)
}
