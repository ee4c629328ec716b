package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rentfolio/escrow-ledger/internal/domain"
)

var (
	ErrInsufficientFrozenFunds = errors.New("insufficient frozen funds")
	ErrAccountNotFound         = errors.New("escrow account not found")
	ErrTransactionNotFound     = errors.New("escrow transaction not found")
)

type User struct {
	ID        uuid.UUID   `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// EscrowAccount tracks a user's available vs. held funds.
// Invariant: Balance >= 0 and FrozenBalance >= 0. Version increments on every
// balance mutation and guards against concurrent double-release.
type EscrowAccount struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	Balance       int64     `json:"balance"`
	FrozenBalance int64     `json:"frozen_balance"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EscrowTransaction is a single escrowed payment. Born PENDING, captured to
// HELD by the checkout webhook, and terminally COMPLETED or FAILED.
type EscrowTransaction struct {
	ID               uuid.UUID  `json:"id"`
	EscrowAccountID  uuid.UUID  `json:"escrow_account_id"`
	Amount           int64      `json:"amount"`
	FeeAmount        int64      `json:"fee_amount"`
	TotalAmount      int64      `json:"total_amount"`
	Type             string     `json:"type"`
	Purpose          string     `json:"purpose"`
	Status           string     `json:"status"`
	Description      string     `json:"description"`
	ReferenceID      string     `json:"reference_id"`
	PayeeID          *uuid.UUID `json:"payee_id,omitempty"`
	PropertyID       *uuid.UUID `json:"property_id,omitempty"`
	ReleaseCondition string     `json:"release_condition"`
	AutoRelease      bool       `json:"auto_release"`
	ReleaseDue       *time.Time `json:"release_due,omitempty"`
	EvidenceURLs     []string   `json:"evidence_urls"`
	HeldAt           *time.Time `json:"held_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// EscrowRule is the release policy for a transaction purpose.
type EscrowRule struct {
	ID               uuid.UUID `json:"id"`
	TransactionType  string    `json:"transaction_type"`
	ReleaseCondition string    `json:"release_condition"`
	ReleaseDays      int32     `json:"release_days"`
	AutoRelease      bool      `json:"auto_release"`
	FeePercent       string    `json:"fee_percent"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ServiceCharge is a recurring obligation surfaced in "upcoming payments".
// Independent of the escrow transaction lifecycle.
type ServiceCharge struct {
	ID             uuid.UUID `json:"id"`
	AccountID      uuid.UUID `json:"account_id"`
	Amount         int64     `json:"amount"`
	Description    string    `json:"description"`
	NextDueDate    time.Time `json:"next_due_date"`
	IntervalMonths int32     `json:"interval_months"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
