package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/observability"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

// ReconciliationService verifies escrow integrity invariants.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that every account's frozen balance equals the sum of its HELD
// transaction amounts, and that the same holds in aggregate.
func (s *ReconciliationService) Run(ctx context.Context) error {
	queries := s.store.Queries()
	net, err := queries.GetFrozenNet(ctx)
	if err != nil {
		return fmt.Errorf("run frozen net query: %w", err)
	}
	observability.SetHeldFunds(net.TotalFrozen)

	if net.TotalFrozen != net.TotalHeld {
		observability.IncrementEscrowImbalance("ALL")
		zap.L().Error("CRITICAL: escrow imbalance detected",
			zap.Int64("total_frozen", net.TotalFrozen),
			zap.Int64("total_held", net.TotalHeld))

		imbalances, byAccountErr := queries.GetFrozenImbalances(ctx)
		if byAccountErr == nil {
			for _, row := range imbalances {
				observability.IncrementEscrowImbalance(repository.FromPgUUID(row.AccountID).String())
				zap.L().Error("escrow imbalance by account",
					zap.String("account_id", repository.FromPgUUID(row.AccountID).String()),
					zap.Int64("frozen_balance", row.FrozenBalance),
					zap.Int64("held_total", row.HeldTotal))
			}
		} else {
			zap.L().Error("failed to load account imbalances", zap.Error(byAccountErr))
		}
		return nil
	}

	zap.L().Info("Escrow Balanced")
	return nil
}
