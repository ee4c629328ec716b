package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/service"
)

// ChargeHandler manages recurring service charges.
type ChargeHandler struct {
	svc        *service.ChargeService
	accountSvc *service.AccountService
}

func NewChargeHandler(svc *service.ChargeService, accountSvc *service.AccountService) *ChargeHandler {
	return &ChargeHandler{svc: svc, accountSvc: accountSvc}
}

// CreateCharge handles POST /v1/service-charges. Admins may target any
// account; landlords only their own.
func (h *ChargeHandler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	if !role.CanCreateCharges() {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	var req struct {
		AccountID      string    `json:"account_id"`
		Amount         int64     `json:"amount"`
		Description    string    `json:"description"`
		NextDueDate    time.Time `json:"next_due_date"`
		IntervalMonths int32     `json:"interval_months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_id")
		return
	}

	account, err := h.accountSvc.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Escrow account not found")
			return
		}
		zap.L().Error("charge account lookup failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/read-failed", "Failed to load escrow account")
		return
	}
	if !role.BypassesOwnership() && account.OwnerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	charge, err := h.svc.CreateCharge(r.Context(), service.CreateChargeRequest{
		AccountID:      accountID,
		Amount:         req.Amount,
		Description:    req.Description,
		NextDueDate:    req.NextDueDate,
		IntervalMonths: req.IntervalMonths,
	})
	if err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create service charge failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusBadRequest, "charge/create-failed", err.Error())
		return
	}

	RespondJSON(w, http.StatusCreated, charge)
}
