package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/gateway"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/repository"
)

var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrPaymentPayloadMismatch = errors.New("payment payload does not match existing reference")
)

// PaymentService creates escrow payments and opens checkout sessions.
type PaymentService struct {
	store     QueryStore
	gateway   gateway.CheckoutGateway
	rules     *RuleService
	publisher events.Publisher
	audit     *AuditService
}

func NewPaymentService(store QueryStore, gw gateway.CheckoutGateway, rules *RuleService, publisher events.Publisher) *PaymentService {
	return &PaymentService{
		store:     store,
		gateway:   gw,
		rules:     rules,
		publisher: publisher,
		audit:     NewAuditService(store),
	}
}

// CreatePaymentRequest holds the parameters for initiating an escrow payment.
type CreatePaymentRequest struct {
	EscrowAccountID uuid.UUID
	Amount          int64
	Purpose         string
	Description     string
	ReferenceID     string
	PayeeID         *uuid.UUID
	PropertyID      *uuid.UUID
	ActorID         *uuid.UUID
}

// PaymentResponse represents the response to a payment initiation.
type PaymentResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	FeeAmount     int64     `json:"fee_amount"`
	TotalAmount   int64     `json:"total_amount"`
	CheckoutURL   string    `json:"checkout_url,omitempty"`
	Message       string    `json:"message"`
}

// CreateEscrowPayment initiates an escrow payment. It matches the release
// rule for the purpose, computes the service fee, opens a checkout session,
// and records a PENDING transaction. No balances move until the provider
// confirms capture via webhook.
//
// The reference ID makes the operation idempotent: a repeated reference with
// the same payload returns the existing transaction.
func (s *PaymentService) CreateEscrowPayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResponse, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	if req.ReferenceID == "" {
		return nil, errors.New("reference_id is required")
	}
	req.Purpose = strings.ToLower(strings.TrimSpace(req.Purpose))
	if req.Purpose == "" {
		return nil, errors.New("purpose is required")
	}

	queries := s.store.Queries()

	existing, err := queries.GetEscrowTransactionByReference(ctx, req.ReferenceID)
	if err == nil {
		if existing.Amount != req.Amount || repository.FromPgUUID(existing.EscrowAccountID) != req.EscrowAccountID {
			return nil, ErrPaymentPayloadMismatch
		}
		return &PaymentResponse{
			TransactionID: repository.FromPgUUID(existing.ID),
			Status:        existing.Status,
			Amount:        existing.Amount,
			FeeAmount:     existing.FeeAmount,
			TotalAmount:   existing.TotalAmount,
			Message:       "Payment already exists",
		}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to check payment idempotency: %w", err)
	}

	rule, err := s.rules.Match(ctx, req.Purpose)
	if err != nil {
		return nil, err
	}

	feeAmount := domain.ServiceFee(req.Amount, rule.FeePercent)
	totalAmount := req.Amount + feeAmount

	session, err := s.gateway.CreateCheckout(ctx, req.ReferenceID, totalAmount)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	transactionID := uuid.New()
	metadata, err := json.Marshal(map[string]any{
		"checkout_session": session.SessionID,
		"purpose":          req.Purpose,
		"fee_percent":      rule.FeePercent.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		if _, err := qtx.GetEscrowAccount(ctx, repository.ToPgUUID(req.EscrowAccountID)); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrAccountNotFound
			}
			return fmt.Errorf("failed to load escrow account: %w", err)
		}

		_, err := qtx.CreateEscrowTransaction(ctx, repository.CreateEscrowTransactionParams{
			ID:               repository.ToPgUUID(transactionID),
			EscrowAccountID:  repository.ToPgUUID(req.EscrowAccountID),
			Amount:           req.Amount,
			FeeAmount:        feeAmount,
			TotalAmount:      totalAmount,
			Type:             domain.TxTypeEscrowPayment,
			Purpose:          req.Purpose,
			Status:           domain.TxStatusPending,
			Description:      strings.TrimSpace(req.Description),
			ReferenceID:      req.ReferenceID,
			PayeeID:          repository.ToPgUUIDPtr(req.PayeeID),
			PropertyID:       repository.ToPgUUIDPtr(req.PropertyID),
			ReleaseCondition: rule.ReleaseCondition,
			AutoRelease:      rule.AutoRelease,
		})
		if err != nil {
			return fmt.Errorf("failed to create escrow transaction: %w", err)
		}

		if err := s.audit.Write(ctx, qtx, "escrow_transaction", transactionID, req.ActorID, "created", "", domain.TxStatusPending, metadata); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.Event{
		Kind:            events.KindTransactionCreated,
		TransactionID:   transactionID,
		EscrowAccountID: req.EscrowAccountID,
		Status:          domain.TxStatusPending,
		Amount:          req.Amount,
	})

	zap.L().Info("escrow payment created",
		zap.String("transaction_id", transactionID.String()),
		zap.String("purpose", req.Purpose),
		zap.Int64("amount", req.Amount),
		zap.Int64("fee_amount", feeAmount))

	return &PaymentResponse{
		TransactionID: transactionID,
		Status:        domain.TxStatusPending,
		Amount:        req.Amount,
		FeeAmount:     feeAmount,
		TotalAmount:   totalAmount,
		CheckoutURL:   session.CheckoutURL,
		Message:       "Awaiting checkout capture",
	}, nil
}

// GetTransaction retrieves a single escrow transaction by ID.
func (s *PaymentService) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*models.EscrowTransaction, error) {
	row, err := s.store.Queries().GetEscrowTransaction(ctx, repository.ToPgUUID(transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return transactionRowToModel(row), nil
}

// ListTransactions returns a page of transactions for an account, newest first.
func (s *PaymentService) ListTransactions(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]models.EscrowTransaction, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	rows, err := s.store.Queries().ListTransactionsByAccount(ctx, repository.ListTransactionsByAccountParams{
		EscrowAccountID: repository.ToPgUUID(accountID),
		Limit:           int32(pageSize),
		Offset:          int32((page - 1) * pageSize),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	out := make([]models.EscrowTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, *transactionRowToModel(row))
	}
	return out, nil
}

// AddEvidence attaches an evidence URL (photo, receipt, inspection report)
// to a transaction for later release review.
func (s *PaymentService) AddEvidence(ctx context.Context, transactionID uuid.UUID, url string, actorID *uuid.UUID) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("evidence url is required")
	}
	return s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		rows, err := qtx.AppendEvidenceURL(ctx, repository.AppendEvidenceURLParams{
			URL: url,
			ID:  repository.ToPgUUID(transactionID),
		})
		if err != nil {
			return fmt.Errorf("append evidence url: %w", err)
		}
		if rows == 0 {
			return models.ErrTransactionNotFound
		}
		if err := requireExactlyOne(rows, "append evidence url"); err != nil {
			return err
		}

		metadata, metaErr := marshalReasonMetadata(url)
		if metaErr != nil {
			return fmt.Errorf("marshal evidence metadata: %w", metaErr)
		}
		return s.audit.Write(ctx, qtx, "escrow_transaction", transactionID, actorID, "evidence_added", "", "", metadata)
	})
}

func transactionRowToModel(row repository.EscrowTransactionRow) *models.EscrowTransaction {
	tx := &models.EscrowTransaction{
		ID:               repository.FromPgUUID(row.ID),
		EscrowAccountID:  repository.FromPgUUID(row.EscrowAccountID),
		Amount:           row.Amount,
		FeeAmount:        row.FeeAmount,
		TotalAmount:      row.TotalAmount,
		Type:             row.Type,
		Purpose:          row.Purpose,
		Status:           row.Status,
		Description:      row.Description,
		ReferenceID:      row.ReferenceID,
		PayeeID:          repository.FromPgUUIDPtr(row.PayeeID),
		PropertyID:       repository.FromPgUUIDPtr(row.PropertyID),
		ReleaseCondition: row.ReleaseCondition,
		AutoRelease:      row.AutoRelease,
		EvidenceURLs:     row.EvidenceURLs,
		CreatedAt:        row.CreatedAt.Time,
		UpdatedAt:        row.UpdatedAt.Time,
	}
	if tx.EvidenceURLs == nil {
		tx.EvidenceURLs = []string{}
	}
	if row.ReleaseDue.Valid {
		t := row.ReleaseDue.Time
		tx.ReleaseDue = &t
	}
	if row.HeldAt.Valid {
		t := row.HeldAt.Time
		tx.HeldAt = &t
	}
	return tx
}
