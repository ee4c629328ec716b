package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

// ErrTransactionNotPending is returned when cancelling a transaction that
// already captured funds or reached a terminal state.
var ErrTransactionNotPending = errors.New("transaction is not pending")

// CleanupService resolves stuck PENDING transactions.
type CleanupService struct {
	store     QueryStore
	publisher events.Publisher
	audit     *AuditService
}

func NewCleanupService(store QueryStore, publisher events.Publisher) *CleanupService {
	return &CleanupService{
		store:     store,
		publisher: publisher,
		audit:     NewAuditService(store),
	}
}

// ClearPendingResponse reports the outcome of a pending sweep.
type ClearPendingResponse struct {
	Cleared []uuid.UUID `json:"cleared"`
}

// CancelPending fails a single PENDING transaction, ending a checkout the
// payer abandoned. No funds were captured, so no balances move.
func (s *CleanupService) CancelPending(ctx context.Context, transactionID uuid.UUID, actorID *uuid.UUID) (*models.EscrowTransaction, error) {
	var cancelled *models.EscrowTransaction
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		row, err := qtx.GetEscrowTransactionForUpdate(ctx, repository.ToPgUUID(transactionID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction for cancel: %w", err)
		}
		if row.Status != domain.TxStatusPending {
			return ErrTransactionNotPending
		}

		metadata, metaErr := marshalReasonMetadata("pending transaction cancelled")
		if metaErr != nil {
			return fmt.Errorf("marshal cancel metadata: %w", metaErr)
		}
		if err := transitionTransactionState(ctx, qtx, s.audit, transactionID, domain.TxStatusFailed, actorID, "cancelled", metadata); err != nil {
			return fmt.Errorf("cancel pending transaction %s: %w", transactionID, err)
		}

		updated, err := qtx.GetEscrowTransaction(ctx, repository.ToPgUUID(transactionID))
		if err != nil {
			return fmt.Errorf("reload cancelled transaction: %w", err)
		}
		cancelled = transactionRowToModel(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.Event{
		Kind:            events.KindTransactionFailed,
		TransactionID:   cancelled.ID,
		EscrowAccountID: cancelled.EscrowAccountID,
		Status:          domain.TxStatusFailed,
	})
	return cancelled, nil
}

// ClearPending marks every PENDING transaction on an account FAILED.
// PENDING transactions never captured funds, so the sweep moves no balances;
// it only ends checkouts that were abandoned before capture.
func (s *CleanupService) ClearPending(ctx context.Context, accountID uuid.UUID, actorID *uuid.UUID) (*ClearPendingResponse, error) {
	resp := &ClearPendingResponse{Cleared: []uuid.UUID{}}
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		if _, err := qtx.GetEscrowAccount(ctx, repository.ToPgUUID(accountID)); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrAccountNotFound
			}
			return fmt.Errorf("load account for cleanup: %w", err)
		}

		pending, err := qtx.ListPendingTransactionsForUpdate(ctx, repository.ToPgUUID(accountID))
		if err != nil {
			return fmt.Errorf("list pending transactions: %w", err)
		}

		metadata, metaErr := marshalReasonMetadata("pending transaction cleared")
		if metaErr != nil {
			return fmt.Errorf("marshal cleanup metadata: %w", metaErr)
		}
		for _, row := range pending {
			transactionID := repository.FromPgUUID(row.ID)
			if err := transitionTransactionState(ctx, qtx, s.audit, transactionID, domain.TxStatusFailed, actorID, "cleared", metadata); err != nil {
				return fmt.Errorf("clear pending transaction %s: %w", transactionID, err)
			}
			resp.Cleared = append(resp.Cleared, transactionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, transactionID := range resp.Cleared {
		s.publisher.Publish(ctx, events.Event{
			Kind:            events.KindTransactionFailed,
			TransactionID:   transactionID,
			EscrowAccountID: accountID,
			Status:          domain.TxStatusFailed,
		})
	}
	if len(resp.Cleared) > 0 {
		zap.L().Info("cleared pending escrow transactions",
			zap.String("account_id", accountID.String()),
			zap.Int("count", len(resp.Cleared)))
	}
	return resp, nil
}
