package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/service"
)

// TransactionHandler covers transaction reads and lifecycle actions:
// release, refund, evidence, pending cleanup.
type TransactionHandler struct {
	paymentSvc *service.PaymentService
	releaseSvc *service.ReleaseService
	cleanupSvc *service.CleanupService
	accountSvc *service.AccountService
}

func NewTransactionHandler(paymentSvc *service.PaymentService, releaseSvc *service.ReleaseService, cleanupSvc *service.CleanupService, accountSvc *service.AccountService) *TransactionHandler {
	return &TransactionHandler{
		paymentSvc: paymentSvc,
		releaseSvc: releaseSvc,
		cleanupSvc: cleanupSvc,
		accountSvc: accountSvc,
	}
}

// GetTransaction handles GET /v1/transactions/{id}.
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.authorizeTransaction(w, r, true)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// Release handles POST /v1/transactions/{id}/release.
func (h *TransactionHandler) Release(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.authorizeTransaction(w, r, false)
	if !ok {
		return
	}
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	resp, err := h.releaseSvc.Release(r.Context(), service.ReleaseRequest{
		TransactionID: tx.ID,
		Reason:        req.Reason,
		ActorID:       &actorID,
	})
	if err != nil {
		h.respondReleaseError(w, r, err, tx.ID)
		return
	}
	RespondJSON(w, http.StatusOK, resp)
}

// Refund handles POST /v1/transactions/{id}/refund. Admin only; wired at
// the router.
func (h *TransactionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.authorizeTransaction(w, r, false)
	if !ok {
		return
	}
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	resp, err := h.releaseSvc.Refund(r.Context(), service.ReleaseRequest{
		TransactionID: tx.ID,
		Reason:        req.Reason,
		ActorID:       &actorID,
	})
	if err != nil {
		h.respondReleaseError(w, r, err, tx.ID)
		return
	}
	RespondJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /v1/transactions/{id}/cancel. Only PENDING
// transactions can be cancelled; no funds were captured, so no balances move.
func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.authorizeTransaction(w, r, false)
	if !ok {
		return
	}
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	cancelled, err := h.cleanupSvc.CancelPending(r.Context(), tx.ID, &actorID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTransactionNotFound):
			RespondError(w, r, http.StatusNotFound, "transaction/not-found", "Transaction not found")
		case errors.Is(err, service.ErrTransactionNotPending):
			RespondError(w, r, http.StatusConflict, "transaction/not-pending", "Only pending transactions can be cancelled")
		default:
			zap.L().Error("cancel transaction failed", zap.Error(err), zap.String("transaction_id", tx.ID.String()))
			RespondError(w, r, http.StatusInternalServerError, "transaction/cancel-failed", "Failed to cancel transaction")
		}
		return
	}
	RespondJSON(w, http.StatusOK, cancelled)
}

// AddEvidence handles POST /v1/transactions/{id}/evidence.
func (h *TransactionHandler) AddEvidence(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.authorizeTransaction(w, r, true)
	if !ok {
		return
	}
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	if err := h.paymentSvc.AddEvidence(r.Context(), tx.ID, req.URL, &actorID); err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			RespondError(w, r, http.StatusNotFound, "transaction/not-found", "Transaction not found")
			return
		}
		zap.L().Error("add evidence failed", zap.Error(err), zap.String("transaction_id", tx.ID.String()))
		RespondError(w, r, http.StatusBadRequest, "transaction/evidence-failed", err.Error())
		return
	}

	updated, err := h.paymentSvc.GetTransaction(r.Context(), tx.ID)
	if err != nil {
		zap.L().Error("reload transaction after evidence failed", zap.Error(err), zap.String("transaction_id", tx.ID.String()))
		RespondError(w, r, http.StatusInternalServerError, "transaction/read-failed", "Failed to reload transaction")
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

// ClearPending handles POST /v1/accounts/{id}/clear-pending. Every PENDING
// transaction on the account is marked FAILED; balances are untouched.
func (h *TransactionHandler) ClearPending(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return
	}

	account, err := h.accountSvc.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Escrow account not found")
			return
		}
		zap.L().Error("cleanup account lookup failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/read-failed", "Failed to load escrow account")
		return
	}
	if !role.BypassesOwnership() && account.OwnerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	resp, err := h.cleanupSvc.ClearPending(r.Context(), accountID, &actorID)
	if err != nil {
		zap.L().Error("clear pending failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "transaction/clear-pending-failed", "Failed to clear pending transactions")
		return
	}
	RespondJSON(w, http.StatusOK, resp)
}

func (h *TransactionHandler) respondReleaseError(w http.ResponseWriter, r *http.Request, err error, transactionID uuid.UUID) {
	switch {
	case errors.Is(err, models.ErrTransactionNotFound):
		RespondError(w, r, http.StatusNotFound, "transaction/not-found", "Transaction not found")
	case errors.Is(err, service.ErrTransactionNotHeld):
		RespondError(w, r, http.StatusConflict, "transaction/not-held", "Transaction is not holding funds")
	case errors.Is(err, models.ErrInsufficientFrozenFunds):
		RespondError(w, r, http.StatusConflict, "transaction/insufficient-frozen-funds", "Frozen balance does not cover the transaction")
	default:
		zap.L().Error("release action failed", zap.Error(err), zap.String("transaction_id", transactionID.String()))
		RespondError(w, r, http.StatusBadRequest, "transaction/release-failed", err.Error())
	}
}

// authorizeTransaction loads the transaction from the URL and enforces
// access through the owning account. Admins may act on any transaction.
// A vendor payee is admitted only when allowPayee is set; handlers that move
// funds or change status never set it, so the payee can read the transaction
// and attach evidence but cannot release, refund, or cancel it.
func (h *TransactionHandler) authorizeTransaction(w http.ResponseWriter, r *http.Request, allowPayee bool) (*models.EscrowTransaction, bool) {
	actorID, role, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return nil, false
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-transaction-id", "Invalid transaction ID")
		return nil, false
	}

	tx, err := h.paymentSvc.GetTransaction(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			RespondError(w, r, http.StatusNotFound, "transaction/not-found", "Transaction not found")
			return nil, false
		}
		zap.L().Error("transaction lookup failed", zap.Error(err), zap.String("transaction_id", transactionID.String()))
		RespondError(w, r, http.StatusInternalServerError, "transaction/read-failed", "Failed to load transaction")
		return nil, false
	}

	if role.BypassesOwnership() {
		return tx, true
	}

	account, err := h.accountSvc.GetAccount(r.Context(), tx.EscrowAccountID)
	if err != nil {
		zap.L().Error("transaction account lookup failed", zap.Error(err), zap.String("transaction_id", transactionID.String()))
		RespondError(w, r, http.StatusInternalServerError, "transaction/read-failed", "Failed to load transaction account")
		return nil, false
	}
	if account.OwnerID == actorID {
		return tx, true
	}
	if allowPayee && tx.PayeeID != nil && *tx.PayeeID == actorID && role == domain.RoleVendor {
		return tx, true
	}

	RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
	return nil, false
}
