package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrCapturePayloadMismatch = errors.New("capture payload does not match transaction")
)

// WebhookService handles capture confirmations from the checkout provider.
type WebhookService struct {
	store     QueryStore
	hmacKey   []byte
	skipSig   bool
	publisher events.Publisher
	audit     *AuditService
}

// NewWebhookService creates a new WebhookService instance.
func NewWebhookService(store QueryStore, hmacKey string, skipSignature bool, publisher events.Publisher) *WebhookService {
	return &WebhookService{
		store:     store,
		hmacKey:   []byte(hmacKey),
		skipSig:   skipSignature,
		publisher: publisher,
		audit:     NewAuditService(store),
	}
}

// CaptureWebhookPayload represents the incoming capture webhook payload.
type CaptureWebhookPayload struct {
	Reference string `json:"reference"` // Reference ID passed at checkout creation
	Amount    int64  `json:"amount"`
	Status    string `json:"status"` // "captured" or "failed"
	Detail    string `json:"detail,omitempty"`
}

// CaptureWebhookResponse represents the response to a capture webhook.
type CaptureWebhookResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
}

// HandleCaptureWebhook processes a checkout capture result. A successful
// capture holds the funds: the transaction moves PENDING to HELD and the
// account's frozen balance grows by the escrowed amount. A failed capture
// moves the transaction to FAILED with no balance effect.
//
// Replays are safe: a transaction already past PENDING is acknowledged
// without touching balances again.
func (s *WebhookService) HandleCaptureWebhook(ctx context.Context, payload []byte, signature string) (*CaptureWebhookResponse, error) {
	if !s.verifyHMAC(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var capture CaptureWebhookPayload
	if err := json.Unmarshal(payload, &capture); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	capture.Reference = strings.TrimSpace(capture.Reference)
	capture.Status = strings.ToLower(strings.TrimSpace(capture.Status))

	if capture.Reference == "" {
		return nil, errors.New("reference is required")
	}
	if capture.Status != "captured" && capture.Status != "failed" {
		return nil, fmt.Errorf("unsupported capture status: %s", capture.Status)
	}

	queries := s.store.Queries()
	txRow, err := queries.GetEscrowTransactionByReference(ctx, capture.Reference)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to look up transaction by reference: %w", err)
	}

	transactionID := repository.FromPgUUID(txRow.ID)
	accountID := repository.FromPgUUID(txRow.EscrowAccountID)

	if capture.Status == "captured" && capture.Amount != txRow.TotalAmount {
		return nil, ErrCapturePayloadMismatch
	}

	// Replay of an already-processed capture.
	if txRow.Status != domain.TxStatusPending {
		return &CaptureWebhookResponse{
			TransactionID: transactionID,
			Status:        txRow.Status,
			Message:       "Capture already processed",
		}, nil
	}

	if capture.Status == "failed" {
		replayStatus, err := s.failCapture(ctx, transactionID, capture.Detail)
		if err != nil {
			return nil, err
		}
		if replayStatus != "" {
			return &CaptureWebhookResponse{
				TransactionID: transactionID,
				Status:        replayStatus,
				Message:       "Capture already processed",
			}, nil
		}
		s.publisher.Publish(ctx, events.Event{
			Kind:            events.KindTransactionFailed,
			TransactionID:   transactionID,
			EscrowAccountID: accountID,
			Status:          domain.TxStatusFailed,
			Amount:          txRow.Amount,
		})
		return &CaptureWebhookResponse{
			TransactionID: transactionID,
			Status:        domain.TxStatusFailed,
			Message:       "Capture failure recorded",
		}, nil
	}

	metadata, err := json.Marshal(map[string]string{
		"webhook_reference": capture.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	// The reference lookup above ran outside the transaction, so a concurrent
	// delivery may have captured this payment in the meantime. The status is
	// re-checked under the row lock before any balance moves.
	var replayStatus string
	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		if _, err := qtx.GetEscrowAccountForUpdate(ctx, txRow.EscrowAccountID); err != nil {
			return fmt.Errorf("failed to lock account: %w", err)
		}

		currentStatus, err := qtx.GetTransactionStatusForUpdate(ctx, txRow.ID)
		if err != nil {
			return fmt.Errorf("failed to lock transaction: %w", err)
		}
		if currentStatus != domain.TxStatusPending {
			replayStatus = currentStatus
			return nil
		}

		if err := transitionTransactionState(ctx, qtx, s.audit, transactionID, domain.TxStatusHeld, nil, "captured", metadata); err != nil {
			return err
		}

		rows, err := qtx.HoldAccountFunds(ctx, repository.HoldAccountFundsParams{
			Amount: txRow.Amount,
			ID:     txRow.EscrowAccountID,
		})
		if err != nil {
			return fmt.Errorf("failed to hold account funds: %w", err)
		}
		if err := requireExactlyOne(rows, "hold captured funds"); err != nil {
			return err
		}

		heldAt := time.Now().UTC()
		held := pgtype.Timestamptz{Time: heldAt, Valid: true}
		var due pgtype.Timestamptz
		if txRow.AutoRelease {
			due = pgtype.Timestamptz{Time: heldAt.Add(releaseWindow(ctx, qtx, txRow.Purpose)), Valid: true}
		}
		rows, err = qtx.MarkTransactionHeld(ctx, repository.MarkTransactionHeldParams{
			HeldAt:     held,
			ReleaseDue: due,
			ID:         txRow.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to mark transaction held: %w", err)
		}
		if err := requireExactlyOne(rows, "mark transaction held"); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayStatus != "" {
		return &CaptureWebhookResponse{
			TransactionID: transactionID,
			Status:        replayStatus,
			Message:       "Capture already processed",
		}, nil
	}

	s.publisher.Publish(ctx, events.Event{
		Kind:            events.KindFundsHeld,
		TransactionID:   transactionID,
		EscrowAccountID: accountID,
		Status:          domain.TxStatusHeld,
		Amount:          txRow.Amount,
	})

	return &CaptureWebhookResponse{
		TransactionID: transactionID,
		Status:        domain.TxStatusHeld,
		Message:       "Funds held in escrow",
	}, nil
}

// releaseWindow resolves the hold duration for a purpose from its rule,
// defaulting when the rule vanished since payment creation.
func releaseWindow(ctx context.Context, qtx *repository.Queries, purpose string) time.Duration {
	days := int32(domain.DefaultAutoReleaseDays)
	if row, err := qtx.GetEscrowRuleByType(ctx, purpose); err == nil && row.ReleaseDays > 0 {
		days = row.ReleaseDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// failCapture fails a still-PENDING transaction. The status re-check under
// the row lock keeps a late failure delivery from clobbering a transaction a
// concurrent capture already moved to HELD; the returned status is non-empty
// when the delivery turned out to be a replay.
func (s *WebhookService) failCapture(ctx context.Context, transactionID uuid.UUID, detail string) (string, error) {
	if detail == "" {
		detail = "capture failed at provider"
	}
	metadata, err := marshalReasonMetadata(detail)
	if err != nil {
		return "", fmt.Errorf("marshal capture failure metadata: %w", err)
	}
	var replayStatus string
	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		currentStatus, err := qtx.GetTransactionStatusForUpdate(ctx, repository.ToPgUUID(transactionID))
		if err != nil {
			return fmt.Errorf("failed to lock transaction: %w", err)
		}
		if currentStatus != domain.TxStatusPending {
			replayStatus = currentStatus
			return nil
		}
		return transitionTransactionState(ctx, qtx, s.audit, transactionID, domain.TxStatusFailed, nil, "capture_failed", metadata)
	})
	return replayStatus, err
}

// verifyHMAC verifies the HMAC signature of the payload.
func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 {
		return false
	}

	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(payload)
	expectedSig := "sha256=" + hex.EncodeToString(h.Sum(nil))

	// Constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}
