package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/service"
)

// RuleHandler administers escrow release rules. All routes are admin only;
// the router enforces it.
type RuleHandler struct {
	svc *service.RuleService
}

func NewRuleHandler(svc *service.RuleService) *RuleHandler {
	return &RuleHandler{svc: svc}
}

// ListRules handles GET /v1/escrow-rules.
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.List(r.Context())
	if err != nil {
		zap.L().Error("list escrow rules failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "rule/list-failed", "Failed to list escrow rules")
		return
	}
	RespondJSON(w, http.StatusOK, rules)
}

// MatchRule handles GET /v1/escrow-rules/match?purpose=... It resolves the
// release policy for a purpose so payment forms can prefill their fields.
// Unknown purposes resolve to the platform defaults.
func (h *RuleHandler) MatchRule(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.svc.Match(r.Context(), r.URL.Query().Get("purpose"))
	if err != nil {
		zap.L().Error("match escrow rule failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "rule/match-failed", "Failed to match escrow rule")
		return
	}

	RespondJSON(w, http.StatusOK, struct {
		ReleaseCondition string `json:"release_condition"`
		AutoReleaseDays  int32  `json:"auto_release_days"`
		AutoRelease      bool   `json:"auto_release"`
		FeePercent       string `json:"fee_percent"`
	}{
		ReleaseCondition: resolved.ReleaseCondition,
		AutoReleaseDays:  resolved.ReleaseDays,
		AutoRelease:      resolved.AutoRelease,
		FeePercent:       resolved.FeePercent.String(),
	})
}

// UpsertRule handles PUT /v1/escrow-rules.
func (h *RuleHandler) UpsertRule(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req struct {
		TransactionType  string `json:"transaction_type"`
		ReleaseCondition string `json:"release_condition"`
		ReleaseDays      int32  `json:"release_days"`
		AutoRelease      bool   `json:"auto_release"`
		FeePercent       string `json:"fee_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	feePercent, err := decimal.NewFromString(req.FeePercent)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-fee-percent", "Invalid fee_percent")
		return
	}

	rule, err := h.svc.Upsert(r.Context(), service.UpsertRuleRequest{
		TransactionType:  req.TransactionType,
		ReleaseCondition: req.ReleaseCondition,
		ReleaseDays:      req.ReleaseDays,
		AutoRelease:      req.AutoRelease,
		FeePercent:       feePercent,
		ActorID:          &actorID,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidReleaseCondition) {
			RespondError(w, r, http.StatusBadRequest, "rule/invalid-release-condition", "Invalid release_condition")
			return
		}
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("upsert escrow rule failed", zap.Error(err), zap.String("transaction_type", req.TransactionType))
		RespondError(w, r, http.StatusBadRequest, "rule/upsert-failed", err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, rule)
}
