package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

func TestRuleMatchFallsBackToDefaults(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewRuleService(repository.NewStore(db), decimal.NewFromInt(10))

	rule, err := svc.Match(context.Background(), "unconfigured-purpose")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultReleaseCondition, rule.ReleaseCondition)
	assert.Equal(t, int32(domain.DefaultAutoReleaseDays), rule.ReleaseDays)
	assert.False(t, rule.AutoRelease)
	assert.Equal(t, "10", rule.FeePercent.String())
}

func TestRuleMatchIsCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewRuleService(repository.NewStore(db), decimal.NewFromInt(10))
	ctx := context.Background()

	_, err := svc.Upsert(ctx, UpsertRuleRequest{
		TransactionType:  "Deposit",
		ReleaseCondition: "scheduled_release",
		ReleaseDays:      30,
		AutoRelease:      true,
		FeePercent:       decimal.NewFromInt(8),
	})
	require.NoError(t, err)

	for _, purpose := range []string{"deposit", "DEPOSIT", "Deposit"} {
		rule, err := svc.Match(ctx, purpose)
		require.NoError(t, err)
		assert.Equal(t, domain.ReleaseScheduled, rule.ReleaseCondition, purpose)
		assert.Equal(t, int32(30), rule.ReleaseDays)
		assert.True(t, rule.AutoRelease)
		assert.Equal(t, "8", rule.FeePercent.String())
	}
}

func TestRuleUpsertClampsFeePercent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewRuleService(repository.NewStore(db), decimal.NewFromInt(10))
	ctx := context.Background()

	rule, err := svc.Upsert(ctx, UpsertRuleRequest{
		TransactionType:  "premium",
		ReleaseCondition: domain.ReleaseManual,
		FeePercent:       decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	assert.Equal(t, "15", decimal.RequireFromString(rule.FeePercent).String())

	rule, err = svc.Upsert(ctx, UpsertRuleRequest{
		TransactionType:  "budget",
		ReleaseCondition: domain.ReleaseManual,
		FeePercent:       decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "5", decimal.RequireFromString(rule.FeePercent).String())
}

func TestRuleUpsertReplacesExisting(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewRuleService(repository.NewStore(db), decimal.NewFromInt(10))
	ctx := context.Background()

	_, err := svc.Upsert(ctx, UpsertRuleRequest{
		TransactionType:  "rent",
		ReleaseCondition: domain.ReleaseManual,
		FeePercent:       decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	updated, err := svc.Upsert(ctx, UpsertRuleRequest{
		TransactionType:  "RENT",
		ReleaseCondition: domain.ReleaseAutomatic,
		ReleaseDays:      3,
		AutoRelease:      true,
		FeePercent:       decimal.NewFromInt(7),
	})
	require.NoError(t, err)
	assert.Equal(t, "rent", updated.TransactionType)
	assert.Equal(t, domain.ReleaseAutomatic, updated.ReleaseCondition)

	rules, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, int32(3), rules[0].ReleaseDays)
}

func TestRuleUpsertRejectsUnknownCondition(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewRuleService(repository.NewStore(db), decimal.NewFromInt(10))

	_, err := svc.Upsert(context.Background(), UpsertRuleRequest{
		TransactionType:  "rent",
		ReleaseCondition: "WHEN_I_FEEL_LIKE_IT",
	})
	require.ErrorIs(t, err, ErrInvalidReleaseCondition)
}

func TestRuleUpsertDefaultsReleaseDays(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewRuleService(repository.NewStore(db), decimal.NewFromInt(10))

	rule, err := svc.Upsert(context.Background(), UpsertRuleRequest{
		TransactionType:  "cleaning",
		ReleaseCondition: domain.ReleaseAutomatic,
		ReleaseDays:      0,
		FeePercent:       decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(domain.DefaultAutoReleaseDays), rule.ReleaseDays)
}
