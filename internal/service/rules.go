package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

var ErrInvalidReleaseCondition = errors.New("invalid release condition")

// RuleService resolves and administers per-purpose escrow release policies.
type RuleService struct {
	store             QueryStore
	defaultFeePercent decimal.Decimal
}

func NewRuleService(store QueryStore, defaultFeePercent decimal.Decimal) *RuleService {
	return &RuleService{
		store:             store,
		defaultFeePercent: domain.ClampFeePercent(defaultFeePercent),
	}
}

// ResolvedRule is the policy applied to a payment after matching (or falling
// back to defaults).
type ResolvedRule struct {
	ReleaseCondition string
	ReleaseDays      int32
	AutoRelease      bool
	FeePercent       decimal.Decimal
}

// Match looks up the rule for a transaction purpose, case-insensitively.
// When no rule exists the platform defaults apply: manual release after
// seven days' worth of nothing, at the default fee.
func (s *RuleService) Match(ctx context.Context, purpose string) (ResolvedRule, error) {
	fallback := ResolvedRule{
		ReleaseCondition: domain.DefaultReleaseCondition,
		ReleaseDays:      domain.DefaultAutoReleaseDays,
		AutoRelease:      false,
		FeePercent:       s.defaultFeePercent,
	}

	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return fallback, nil
	}

	row, err := s.store.Queries().GetEscrowRuleByType(ctx, purpose)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fallback, nil
		}
		return ResolvedRule{}, fmt.Errorf("match escrow rule: %w", err)
	}

	feePercent, err := decimal.NewFromString(row.FeePercent)
	if err != nil {
		zap.L().Warn("escrow rule has unparsable fee percent, using default",
			zap.String("transaction_type", row.TransactionType),
			zap.String("fee_percent", row.FeePercent))
		feePercent = s.defaultFeePercent
	}

	return ResolvedRule{
		ReleaseCondition: row.ReleaseCondition,
		ReleaseDays:      row.ReleaseDays,
		AutoRelease:      row.AutoRelease,
		FeePercent:       domain.ClampFeePercent(feePercent),
	}, nil
}

// UpsertRuleRequest holds the parameters for creating or replacing a rule.
type UpsertRuleRequest struct {
	TransactionType  string
	ReleaseCondition string
	ReleaseDays      int32
	AutoRelease      bool
	FeePercent       decimal.Decimal
	ActorID          *uuid.UUID
}

// Upsert creates or replaces the rule for a transaction type. The fee percent
// is clamped into the platform band before persisting.
func (s *RuleService) Upsert(ctx context.Context, req UpsertRuleRequest) (*models.EscrowRule, error) {
	transactionType := strings.ToLower(strings.TrimSpace(req.TransactionType))
	if transactionType == "" {
		return nil, errors.New("transaction_type is required")
	}
	condition := strings.ToUpper(strings.TrimSpace(req.ReleaseCondition))
	if !domain.IsReleaseCondition(condition) {
		return nil, ErrInvalidReleaseCondition
	}
	releaseDays := req.ReleaseDays
	if releaseDays <= 0 {
		releaseDays = domain.DefaultAutoReleaseDays
	}
	feePercent := domain.ClampFeePercent(req.FeePercent)

	var rule *models.EscrowRule
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		row, err := qtx.UpsertEscrowRule(ctx, repository.UpsertEscrowRuleParams{
			ID:               repository.ToPgUUID(uuid.New()),
			TransactionType:  transactionType,
			ReleaseCondition: condition,
			ReleaseDays:      releaseDays,
			AutoRelease:      req.AutoRelease,
			FeePercent:       feePercent.String(),
		})
		if err != nil {
			return fmt.Errorf("upsert escrow rule: %w", err)
		}

		audit := NewAuditService(s.store)
		metadata, metaErr := marshalReasonMetadata("rule upserted for " + transactionType)
		if metaErr != nil {
			return fmt.Errorf("marshal rule metadata: %w", metaErr)
		}
		if err := audit.Write(ctx, qtx, "escrow_rule", repository.FromPgUUID(row.ID), req.ActorID, "rule_upserted", "", condition, metadata); err != nil {
			return err
		}

		rule = ruleRowToModel(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// List returns all configured rules ordered by transaction type.
func (s *RuleService) List(ctx context.Context) ([]models.EscrowRule, error) {
	rows, err := s.store.Queries().ListEscrowRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list escrow rules: %w", err)
	}
	out := make([]models.EscrowRule, 0, len(rows))
	for _, row := range rows {
		out = append(out, *ruleRowToModel(row))
	}
	return out, nil
}

func ruleRowToModel(row repository.EscrowRuleRow) *models.EscrowRule {
	return &models.EscrowRule{
		ID:               repository.FromPgUUID(row.ID),
		TransactionType:  row.TransactionType,
		ReleaseCondition: row.ReleaseCondition,
		ReleaseDays:      row.ReleaseDays,
		AutoRelease:      row.AutoRelease,
		FeePercent:       row.FeePercent,
		CreatedAt:        row.CreatedAt.Time,
		UpdatedAt:        row.UpdatedAt.Time,
	}
}
