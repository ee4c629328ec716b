package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/service"
)

// PaymentHandler handles escrow payment initiation.
type PaymentHandler struct {
	paymentSvc *service.PaymentService
	accountSvc *service.AccountService
}

func NewPaymentHandler(paymentSvc *service.PaymentService, accountSvc *service.AccountService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc, accountSvc: accountSvc}
}

// CreatePayment handles POST /v1/payments.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		EscrowAccountID string  `json:"escrow_account_id"`
		Amount          int64   `json:"amount"`
		Purpose         string  `json:"purpose"`
		Description     string  `json:"description"`
		ReferenceID     string  `json:"reference_id"`
		PayeeID         *string `json:"payee_id"`
		PropertyID      *string `json:"property_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	accountID, err := uuid.Parse(req.EscrowAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid escrow_account_id")
		return
	}

	account, err := h.accountSvc.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Escrow account not found")
			return
		}
		zap.L().Error("payment account lookup failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "payment/account-lookup-failed", "Failed to load escrow account")
		return
	}
	if !role.BypassesOwnership() && account.OwnerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	payeeID, ok := parseOptionalUUID(req.PayeeID)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-payee-id", "Invalid payee_id")
		return
	}
	propertyID, ok := parseOptionalUUID(req.PropertyID)
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-property-id", "Invalid property_id")
		return
	}

	resp, err := h.paymentSvc.CreateEscrowPayment(r.Context(), service.CreatePaymentRequest{
		EscrowAccountID: accountID,
		Amount:          req.Amount,
		Purpose:         req.Purpose,
		Description:     req.Description,
		ReferenceID:     req.ReferenceID,
		PayeeID:         payeeID,
		PropertyID:      propertyID,
		ActorID:         &actorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			RespondError(w, r, http.StatusBadRequest, "payment/invalid-amount", err.Error())
		case errors.Is(err, service.ErrPaymentPayloadMismatch):
			RespondError(w, r, http.StatusConflict, "payment/reference-conflict", err.Error())
		default:
			if status, pType, msg, ok := mapDBError(err); ok {
				RespondError(w, r, status, pType, msg)
				return
			}
			zap.L().Error("create escrow payment failed", zap.Error(err), zap.String("account_id", accountID.String()))
			RespondError(w, r, http.StatusBadRequest, "payment/create-failed", err.Error())
		}
		return
	}

	RespondJSON(w, http.StatusAccepted, resp)
}

func parseOptionalUUID(raw *string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}
