package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rentfolio/escrow-ledger/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from string
		to   string
		ok   bool
	}{
		{domain.TxStatusPending, domain.TxStatusHeld, true},
		{domain.TxStatusPending, domain.TxStatusFailed, true},
		{domain.TxStatusHeld, domain.TxStatusCompleted, true},
		{domain.TxStatusHeld, domain.TxStatusFailed, true},

		// Funds must be held before they can be released.
		{domain.TxStatusPending, domain.TxStatusCompleted, false},

		// Terminal states.
		{domain.TxStatusCompleted, domain.TxStatusHeld, false},
		{domain.TxStatusCompleted, domain.TxStatusFailed, false},
		{domain.TxStatusFailed, domain.TxStatusPending, false},
		{domain.TxStatusFailed, domain.TxStatusHeld, false},

		{domain.TxStatusHeld, domain.TxStatusPending, false},
		{"UNKNOWN", domain.TxStatusHeld, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransitionNormalizesCase(t *testing.T) {
	assert.True(t, canTransition("pending", "held"))
	assert.True(t, canTransition(" held ", "COMPLETED"))
	assert.False(t, canTransition("pending", "completed"))
}
