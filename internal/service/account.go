package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

// AccountService manages escrow accounts.
type AccountService struct {
	store QueryStore
}

func NewAccountService(store QueryStore) *AccountService {
	return &AccountService{store: store}
}

// CreateAccount opens an escrow account for a user. At most one per owner;
// the unique constraint on owner_id enforces it.
func (s *AccountService) CreateAccount(ctx context.Context, ownerID uuid.UUID, openingBalance int64) (*models.EscrowAccount, error) {
	if openingBalance < 0 {
		return nil, errors.New("opening balance cannot be negative")
	}
	row, err := s.store.Queries().CreateEscrowAccount(ctx, repository.CreateEscrowAccountParams{
		ID:      repository.ToPgUUID(uuid.New()),
		OwnerID: repository.ToPgUUID(ownerID),
		Balance: openingBalance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create escrow account: %w", err)
	}
	return accountRowToModel(row), nil
}

// GetAccount retrieves an escrow account by ID.
func (s *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.EscrowAccount, error) {
	row, err := s.store.Queries().GetEscrowAccount(ctx, repository.ToPgUUID(accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get escrow account: %w", err)
	}
	return accountRowToModel(row), nil
}

// GetAccountByOwner retrieves a user's escrow account.
func (s *AccountService) GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*models.EscrowAccount, error) {
	row, err := s.store.Queries().GetEscrowAccountByOwner(ctx, repository.ToPgUUID(ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get escrow account by owner: %w", err)
	}
	return accountRowToModel(row), nil
}

func accountRowToModel(row repository.EscrowAccountRow) *models.EscrowAccount {
	return &models.EscrowAccount{
		ID:            repository.FromPgUUID(row.ID),
		OwnerID:       repository.FromPgUUID(row.OwnerID),
		Balance:       row.Balance,
		FrozenBalance: row.FrozenBalance,
		Version:       row.Version,
		CreatedAt:     row.CreatedAt.Time,
		UpdatedAt:     row.UpdatedAt.Time,
	}
}
