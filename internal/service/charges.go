package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

// ChargeService manages recurring service charges shown as upcoming payments.
type ChargeService struct {
	store QueryStore
}

func NewChargeService(store QueryStore) *ChargeService {
	return &ChargeService{store: store}
}

// CreateChargeRequest holds the parameters for scheduling a recurring charge.
type CreateChargeRequest struct {
	AccountID      uuid.UUID
	Amount         int64
	Description    string
	NextDueDate    time.Time
	IntervalMonths int32
}

// CreateCharge schedules a recurring charge against an account.
func (s *ChargeService) CreateCharge(ctx context.Context, req CreateChargeRequest) (*models.ServiceCharge, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Description == "" {
		return nil, errors.New("description is required")
	}
	if req.NextDueDate.IsZero() {
		return nil, errors.New("next_due_date is required")
	}
	if req.IntervalMonths < 0 {
		return nil, errors.New("interval_months cannot be negative")
	}

	row, err := s.store.Queries().CreateServiceCharge(ctx, repository.CreateServiceChargeParams{
		ID:             repository.ToPgUUID(uuid.New()),
		AccountID:      repository.ToPgUUID(req.AccountID),
		Amount:         req.Amount,
		Description:    req.Description,
		NextDueDate:    toTimestamptz(req.NextDueDate),
		IntervalMonths: req.IntervalMonths,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create service charge: %w", err)
	}
	return chargeRowToModel(row), nil
}

// ListUpcoming returns the next scheduled charges for an account, soonest first.
func (s *ChargeService) ListUpcoming(ctx context.Context, accountID uuid.UUID, limit int) ([]models.ServiceCharge, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := s.store.Queries().ListUpcomingCharges(ctx, repository.ListUpcomingChargesParams{
		AccountID: repository.ToPgUUID(accountID),
		Limit:     int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming charges: %w", err)
	}
	out := make([]models.ServiceCharge, 0, len(rows))
	for _, row := range rows {
		out = append(out, *chargeRowToModel(row))
	}
	return out, nil
}

func chargeRowToModel(row repository.ServiceChargeRow) *models.ServiceCharge {
	return &models.ServiceCharge{
		ID:             repository.FromPgUUID(row.ID),
		AccountID:      repository.FromPgUUID(row.AccountID),
		Amount:         row.Amount,
		Description:    row.Description,
		NextDueDate:    row.NextDueDate.Time,
		IntervalMonths: row.IntervalMonths,
		CreatedAt:      row.CreatedAt.Time,
		UpdatedAt:      row.UpdatedAt.Time,
	}
}
