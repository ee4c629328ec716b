package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/observability"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

var (
	ErrTransactionNotHeld = errors.New("transaction is not holding funds")
	ErrNotReleasable      = errors.New("transaction cannot be released")
)

// ReleaseService moves held funds to the available balance and finalizes
// transactions.
type ReleaseService struct {
	store     QueryStore
	publisher events.Publisher
	audit     *AuditService
}

func NewReleaseService(store QueryStore, publisher events.Publisher) *ReleaseService {
	return &ReleaseService{
		store:     store,
		publisher: publisher,
		audit:     NewAuditService(store),
	}
}

// ReleaseRequest holds the parameters for releasing held funds.
type ReleaseRequest struct {
	TransactionID uuid.UUID
	Reason        string
	ActorID       *uuid.UUID
}

// ReleaseResponse reports the account state after a release.
type ReleaseResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Balance       int64     `json:"balance"`
	FrozenBalance int64     `json:"frozen_balance"`
}

// Release moves a HELD transaction's funds from frozen to available and
// completes it, all in one database transaction. The status check runs under
// a row lock and the frozen balance guard makes the fund movement affect zero
// rows on a replay, so a double release cannot double-credit.
func (s *ReleaseService) Release(ctx context.Context, req ReleaseRequest) (*ReleaseResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, errors.New("reason is required")
	}

	resp, err := s.releaseTx(ctx, req.TransactionID, reason, req.ActorID, "released")
	if err != nil {
		observability.IncrementReleaseOutcome("failed")
		return nil, err
	}
	observability.IncrementReleaseOutcome("released")
	return resp, nil
}

func (s *ReleaseService) releaseTx(ctx context.Context, transactionID uuid.UUID, reason string, actorID *uuid.UUID, action string) (*ReleaseResponse, error) {
	var resp *ReleaseResponse
	var accountID uuid.UUID
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		txRow, err := qtx.GetEscrowTransactionForUpdate(ctx, repository.ToPgUUID(transactionID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrTransactionNotFound
			}
			return fmt.Errorf("lock transaction for release: %w", err)
		}
		if txRow.Status != domain.TxStatusHeld {
			return ErrTransactionNotHeld
		}

		rows, err := qtx.ReleaseAccountFunds(ctx, repository.ReleaseAccountFundsParams{
			Amount: txRow.Amount,
			ID:     txRow.EscrowAccountID,
		})
		if err != nil {
			return fmt.Errorf("release account funds: %w", err)
		}
		if rows == 0 {
			return models.ErrInsufficientFrozenFunds
		}
		if err := requireExactlyOne(rows, "release account funds"); err != nil {
			return err
		}

		note := "Released: " + reason
		rows, err = qtx.AppendTransactionDescription(ctx, repository.AppendTransactionDescriptionParams{
			Note: note,
			ID:   txRow.ID,
		})
		if err != nil {
			return fmt.Errorf("append release note: %w", err)
		}
		if err := requireExactlyOne(rows, "append release note"); err != nil {
			return err
		}

		metadata, metaErr := marshalReasonMetadata(reason)
		if metaErr != nil {
			return fmt.Errorf("marshal release metadata: %w", metaErr)
		}
		if err := transitionTransactionState(ctx, qtx, s.audit, transactionID, domain.TxStatusCompleted, actorID, action, metadata); err != nil {
			return err
		}

		accountRow, err := qtx.GetEscrowAccount(ctx, txRow.EscrowAccountID)
		if err != nil {
			return fmt.Errorf("reload account after release: %w", err)
		}

		accountID = repository.FromPgUUID(txRow.EscrowAccountID)
		resp = &ReleaseResponse{
			TransactionID: transactionID,
			Status:        domain.TxStatusCompleted,
			Amount:        txRow.Amount,
			Balance:       accountRow.Balance,
			FrozenBalance: accountRow.FrozenBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.Event{
		Kind:            events.KindFundsReleased,
		TransactionID:   transactionID,
		EscrowAccountID: accountID,
		Status:          domain.TxStatusCompleted,
		Amount:          resp.Amount,
	})
	return resp, nil
}

// Refund fails a HELD transaction and drops its hold without crediting the
// available balance. Used for dispute resolutions that go against the payee.
func (s *ReleaseService) Refund(ctx context.Context, req ReleaseRequest) (*ReleaseResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, errors.New("reason is required")
	}

	var resp *ReleaseResponse
	var accountID uuid.UUID
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		txRow, err := qtx.GetEscrowTransactionForUpdate(ctx, repository.ToPgUUID(req.TransactionID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrTransactionNotFound
			}
			return fmt.Errorf("lock transaction for refund: %w", err)
		}
		if txRow.Status != domain.TxStatusHeld {
			return ErrTransactionNotHeld
		}

		rows, err := qtx.RefundAccountFunds(ctx, repository.RefundAccountFundsParams{
			Amount: txRow.Amount,
			ID:     txRow.EscrowAccountID,
		})
		if err != nil {
			return fmt.Errorf("refund account funds: %w", err)
		}
		if rows == 0 {
			return models.ErrInsufficientFrozenFunds
		}
		if err := requireExactlyOne(rows, "refund account funds"); err != nil {
			return err
		}

		rows, err = qtx.AppendTransactionDescription(ctx, repository.AppendTransactionDescriptionParams{
			Note: "Refunded: " + reason,
			ID:   txRow.ID,
		})
		if err != nil {
			return fmt.Errorf("append refund note: %w", err)
		}
		if err := requireExactlyOne(rows, "append refund note"); err != nil {
			return err
		}

		metadata, metaErr := marshalReasonMetadata(reason)
		if metaErr != nil {
			return fmt.Errorf("marshal refund metadata: %w", metaErr)
		}
		if err := transitionTransactionState(ctx, qtx, s.audit, req.TransactionID, domain.TxStatusFailed, req.ActorID, "refunded", metadata); err != nil {
			return err
		}

		accountRow, err := qtx.GetEscrowAccount(ctx, txRow.EscrowAccountID)
		if err != nil {
			return fmt.Errorf("reload account after refund: %w", err)
		}
		accountID = repository.FromPgUUID(txRow.EscrowAccountID)
		resp = &ReleaseResponse{
			TransactionID: req.TransactionID,
			Status:        domain.TxStatusFailed,
			Amount:        txRow.Amount,
			Balance:       accountRow.Balance,
			FrozenBalance: accountRow.FrozenBalance,
		}
		return nil
	})
	if err != nil {
		observability.IncrementReleaseOutcome("refund_failed")
		return nil, err
	}
	observability.IncrementReleaseOutcome("refunded")

	s.publisher.Publish(ctx, events.Event{
		Kind:            events.KindTransactionFailed,
		TransactionID:   req.TransactionID,
		EscrowAccountID: accountID,
		Status:          domain.TxStatusFailed,
		Amount:          resp.Amount,
	})
	return resp, nil
}

// ProcessDueReleases releases HELD auto-release transactions whose deadline
// has passed. Rows are claimed with SKIP LOCKED so multiple instances can run
// concurrently without double-processing, and each transaction is released
// in its own database transaction so one failure does not poison the batch.
func (s *ReleaseService) ProcessDueReleases(ctx context.Context, batchSize int32) (int, error) {
	var due []repository.EscrowTransactionRow
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		var err error
		due, err = qtx.ListAutoReleaseDue(ctx, repository.ListAutoReleaseDueParams{
			Now:   pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
			Limit: batchSize,
		})
		if err != nil {
			return fmt.Errorf("list auto-release due transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	released := 0
	for _, row := range due {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		transactionID := repository.FromPgUUID(row.ID)
		if _, err := s.releaseTx(ctx, transactionID, autoReleaseReason(row), nil, "auto_released"); err != nil {
			// ErrTransactionNotHeld means another worker got there first.
			if errors.Is(err, ErrTransactionNotHeld) {
				continue
			}
			observability.IncrementReleaseOutcome("auto_failed")
			zap.L().Error("auto-release failed",
				zap.Error(err),
				zap.String("transaction_id", transactionID.String()))
			continue
		}
		observability.IncrementReleaseOutcome("auto_released")
		released++
	}

	if released > 0 {
		zap.L().Info("auto-released due escrow transactions", zap.Int("count", released))
	}
	return released, nil
}

// autoReleaseReason names the hold window that just elapsed, derived from the
// held_at/release_due pair stamped at capture time.
func autoReleaseReason(row repository.EscrowTransactionRow) string {
	days := int64(domain.DefaultAutoReleaseDays)
	if row.HeldAt.Valid && row.ReleaseDue.Valid {
		if d := int64(row.ReleaseDue.Time.Sub(row.HeldAt.Time) / (24 * time.Hour)); d > 0 {
			days = d
		}
	}
	return fmt.Sprintf("Auto-released after %d day hold period", days)
}
