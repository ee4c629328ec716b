package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/service"
)

type AccountHandler struct {
	svc        *service.AccountService
	paymentSvc *service.PaymentService
	chargeSvc  *service.ChargeService
}

func NewAccountHandler(svc *service.AccountService, paymentSvc *service.PaymentService, chargeSvc *service.ChargeService) *AccountHandler {
	return &AccountHandler{svc: svc, paymentSvc: paymentSvc, chargeSvc: chargeSvc}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		OwnerID string `json:"owner_id"`
		Balance int64  `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-owner-id", "Invalid owner_id")
		return
	}
	if !role.BypassesOwnership() && ownerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), ownerID, req.Balance)
	if err != nil {
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create escrow account failed", zap.Error(err), zap.String("owner_id", ownerID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/create-failed", "Failed to create escrow account")
		return
	}

	RespondJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.authorizeAccount(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// GetTransactions handles GET /v1/accounts/{id}/transactions with pagination.
func (h *AccountHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	account, ok := h.authorizeAccount(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	transactions, err := h.paymentSvc.ListTransactions(r.Context(), account.ID, page, pageSize)
	if err != nil {
		zap.L().Error("list transactions failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/transactions-read-failed", "Failed to list transactions")
		return
	}

	RespondJSON(w, http.StatusOK, transactions)
}

// GetUpcomingCharges handles GET /v1/accounts/{id}/upcoming-charges.
func (h *AccountHandler) GetUpcomingCharges(w http.ResponseWriter, r *http.Request) {
	account, ok := h.authorizeAccount(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	charges, err := h.chargeSvc.ListUpcoming(r.Context(), account.ID, limit)
	if err != nil {
		zap.L().Error("list upcoming charges failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/charges-read-failed", "Failed to list upcoming charges")
		return
	}

	RespondJSON(w, http.StatusOK, charges)
}

// authorizeAccount loads the account from the URL and enforces ownership.
// Admins may read any account.
func (h *AccountHandler) authorizeAccount(w http.ResponseWriter, r *http.Request) (*models.EscrowAccount, bool) {
	actorID, role, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return nil, false
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account ID")
		return nil, false
	}

	account, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Escrow account not found")
			return nil, false
		}
		zap.L().Error("account lookup failed", zap.Error(err), zap.String("account_id", accountID.String()))
		RespondError(w, r, http.StatusInternalServerError, "account/read-failed", "Failed to load escrow account")
		return nil, false
	}
	if !role.BypassesOwnership() && account.OwnerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return nil, false
	}
	return account, true
}
