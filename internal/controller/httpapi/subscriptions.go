package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/service"
)

type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	logger        *zap.Logger
}

func NewSubscriptionHandler(subscriptions *service.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

type createSubscriptionRequest struct {
	RuleID int64 `json:"ruleId" validate:"required,gt=0"`
}

type pauseRequest struct {
	Until *time.Time `json:"until"`
}

// Create handles POST /api/subscriptions.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	checkout, err := h.subscriptions.Create(r.Context(), principal, req.RuleID)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusCreated, checkout)
}

// Get handles GET /api/subscriptions/{id}.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	sub, err := h.subscriptions.Get(r.Context(), principal, id)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}

// Pause handles POST /api/subscriptions/{id}/pause. An empty body pauses indefinitely.
func (h *SubscriptionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	var req pauseRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			Error(w, h.logger, err)
			return
		}
	}
	principal, _ := PrincipalFrom(r.Context())

	sub, err := h.subscriptions.Pause(r.Context(), principal, id, req.Until)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}

// Resume handles POST /api/subscriptions/{id}/resume.
func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	sub, err := h.subscriptions.Resume(r.Context(), principal, id)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}

// Cancel handles POST /api/subscriptions/{id}/cancel.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	sub, err := h.subscriptions.Cancel(r.Context(), principal, id)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}
