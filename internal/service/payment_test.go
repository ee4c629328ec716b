package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/gateway"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

type stubCheckout struct {
	session *gateway.CheckoutSession
	err     error
}

func (s *stubCheckout) CreateCheckout(ctx context.Context, referenceID string, totalAmount int64) (*gateway.CheckoutSession, error) {
	return s.session, s.err
}

func newPaymentService(db *repository.Store) *PaymentService {
	checkout := &stubCheckout{session: &gateway.CheckoutSession{
		SessionID:   "SESSION-TEST",
		CheckoutURL: "https://checkout.example.test/SESSION-TEST",
	}}
	rules := NewRuleService(db, decimal.NewFromInt(10))
	return NewPaymentService(db, checkout, rules, events.NopPublisher{})
}

func TestCreateEscrowPaymentDefaultFee(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc := newPaymentService(store)
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)

	resp, err := svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          100_000,
		Purpose:         "rent",
		Description:     "September rent",
		ReferenceID:     "pay-default-fee",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, resp.Status)
	assert.Equal(t, int64(100_000), resp.Amount)
	assert.Equal(t, int64(10_000), resp.FeeAmount)
	assert.Equal(t, int64(110_000), resp.TotalAmount)
	assert.Equal(t, "https://checkout.example.test/SESSION-TEST", resp.CheckoutURL)

	// No balances move until capture.
	balance, frozen := accountBalances(t, db, accountID)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(0), frozen)

	row, err := repository.New(db).GetEscrowTransaction(ctx, repository.ToPgUUID(resp.TransactionID))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultReleaseCondition, row.ReleaseCondition)
	assert.False(t, row.AutoRelease)
}

func TestCreateEscrowPaymentAppliesRule(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc := newPaymentService(store)
	ctx := context.Background()

	_, err := db.Exec(ctx, `
		INSERT INTO escrow_rules (id, transaction_type, release_condition, release_days, auto_release, fee_percent, created_at, updated_at)
		VALUES ($1, 'repair', 'COMPLETION_CONFIRMED', 14, TRUE, 12.5, NOW(), NOW())`,
		uuid.New())
	require.NoError(t, err)

	accountID := seedAccount(t, db, 0, 0)
	resp, err := svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          40_000,
		Purpose:         "Repair",
		ReferenceID:     "pay-rule",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), resp.FeeAmount)
	assert.Equal(t, int64(45_000), resp.TotalAmount)

	row, err := repository.New(db).GetEscrowTransaction(ctx, repository.ToPgUUID(resp.TransactionID))
	require.NoError(t, err)
	assert.Equal(t, "COMPLETION_CONFIRMED", row.ReleaseCondition)
	assert.True(t, row.AutoRelease)
	assert.Equal(t, "repair", row.Purpose)
}

func TestCreateEscrowPaymentReferenceIdempotency(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc := newPaymentService(store)
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)

	first, err := svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          20_000,
		Purpose:         "rent",
		ReferenceID:     "pay-idem",
	})
	require.NoError(t, err)

	second, err := svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          20_000,
		Purpose:         "rent",
		ReferenceID:     "pay-idem",
	})
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, "Payment already exists", second.Message)

	// A replay with a different payload is rejected.
	_, err = svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          99_999,
		Purpose:         "rent",
		ReferenceID:     "pay-idem",
	})
	require.ErrorIs(t, err, ErrPaymentPayloadMismatch)
}

func TestCreateEscrowPaymentValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := newPaymentService(repository.NewStore(db))
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)

	_, err := svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          0,
		Purpose:         "rent",
		ReferenceID:     "pay-zero",
	})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          1_000,
		Purpose:         "rent",
		ReferenceID:     "",
	})
	require.Error(t, err)

	_, err = svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: uuid.New(),
		Amount:          1_000,
		Purpose:         "rent",
		ReferenceID:     "pay-no-account",
	})
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestCreateEscrowPaymentGatewayFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	rules := NewRuleService(store, decimal.NewFromInt(10))
	checkout := &stubCheckout{err: errors.New("provider unavailable")}
	svc := NewPaymentService(store, checkout, rules, events.NopPublisher{})
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 0)
	_, err := svc.CreateEscrowPayment(ctx, CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          5_000,
		Purpose:         "rent",
		ReferenceID:     "pay-gateway-down",
	})
	require.Error(t, err)

	// Nothing was recorded.
	var count int
	require.NoError(t, db.QueryRow(ctx,
		`SELECT COUNT(*) FROM escrow_transactions WHERE reference_id = 'pay-gateway-down'`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestAddEvidence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc := newPaymentService(store)
	ctx := context.Background()

	accountID := seedAccount(t, db, 0, 10_000)
	txID := seedTransaction(t, db, accountID, 10_000, domain.TxStatusHeld, "ref-evidence")

	require.NoError(t, svc.AddEvidence(ctx, txID, "https://img.example.test/receipt.jpg", nil))
	require.NoError(t, svc.AddEvidence(ctx, txID, "https://img.example.test/inspection.pdf", nil))

	tx, err := svc.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://img.example.test/receipt.jpg",
		"https://img.example.test/inspection.pdf",
	}, tx.EvidenceURLs)

	err = svc.AddEvidence(ctx, uuid.New(), "https://img.example.test/missing.jpg", nil)
	require.ErrorIs(t, err, models.ErrTransactionNotFound)
}
