package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/models"
	"github.com/rentfolio/escrow-ledger/internal/service"
)

// WebhookHandler handles incoming capture events from the checkout provider.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookSvc: webhookSvc,
	}
}

// HandleCaptureWebhook handles POST /v1/webhooks/capture.
// It verifies the HMAC signature and applies the capture result.
func (h *WebhookHandler) HandleCaptureWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")

	resp, err := h.webhookSvc.HandleCaptureWebhook(r.Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
		case errors.Is(err, models.ErrTransactionNotFound):
			RespondError(w, r, http.StatusNotFound, "webhook/unknown-reference", "Unknown payment reference")
		case errors.Is(err, service.ErrCapturePayloadMismatch):
			RespondError(w, r, http.StatusConflict, "webhook/payload-mismatch", "Capture payload does not match transaction")
		default:
			zap.L().Error("process capture webhook failed", zap.Error(err))
			RespondError(w, r, http.StatusBadRequest, "webhook/processing-failed", err.Error())
		}
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
