package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/service"
)

type BookingHandler struct {
	bookings *service.BookingService
	logger   *zap.Logger
}

func NewBookingHandler(bookings *service.BookingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

type createBookingRequest struct {
	SlotID int64 `json:"slotId" validate:"required,gt=0"`
}

type confirmBookingRequest struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type completeResponse struct {
	Booking *model.Booking `json:"booking"`
	Payout  *model.Payout  `json:"payout"`
}

// Create handles POST /api/bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	checkout, err := h.bookings.Create(r.Context(), principal, req.SlotID)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusCreated, checkout)
}

// List handles GET /api/bookings.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	bookings, err := h.bookings.List(r.Context(), principal)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}
	JSON(w, http.StatusOK, bookings)
}

// Get handles GET /api/bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	booking, err := h.bookings.Get(r.Context(), principal, id)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, booking)
}

// Confirm handles POST /api/bookings/{id}/confirm after the checkout widget succeeds.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	var req confirmBookingRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	booking, err := h.bookings.ConfirmPayment(r.Context(), principal, id, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, booking)
}

// Cancel handles POST /api/bookings/{id}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			Error(w, h.logger, err)
			return
		}
	}
	principal, _ := PrincipalFrom(r.Context())

	booking, err := h.bookings.Cancel(r.Context(), principal, id, req.Reason)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, booking)
}

// Complete handles POST /api/bookings/{id}/complete.
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	booking, payout, err := h.bookings.Complete(r.Context(), principal, id)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, completeResponse{Booking: booking, Payout: payout})
}

// Dispute handles POST /api/bookings/{id}/disputes.
func (h *BookingHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	var req disputeRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	dispute, err := h.bookings.Dispute(r.Context(), principal, id, req.Reason)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusCreated, dispute)
}
