package httpapi

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/service"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	maxWebhookBody  = 1 << 20
)

type WebhookHandler struct {
	reconciler *service.Reconciler
	logger     *zap.Logger
}

func NewWebhookHandler(reconciler *service.Reconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// Razorpay handles POST /api/webhooks/razorpay. The signature covers the raw body,
// so it is read before any decoding.
func (h *WebhookHandler) Razorpay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		Error(w, h.logger, model.Errorf(model.ErrBadRequest, "failed to read body"))
		return
	}

	err = h.reconciler.HandleProviderEvent(r.Context(), body, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, model.ErrInvalidSignature):
		Error(w, h.logger, err)
	default:
		// the provider retries on any non-2xx
		h.logger.Error("Webhook processing failed", zap.Error(err))
		JSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "INTERNAL", Message: "retry later"}})
	}
}
