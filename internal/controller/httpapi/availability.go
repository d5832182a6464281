package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/service"
)

const defaultListWindow = 28 * 24 * time.Hour

// AvailabilityHandler serves host rules and slots.
type AvailabilityHandler struct {
	slots  *service.SlotService
	logger *zap.Logger
}

func NewAvailabilityHandler(slots *service.SlotService, logger *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{slots: slots, logger: logger}
}

type ruleRequest struct {
	Weekday         *int   `json:"weekday" validate:"required,min=0,max=6"`
	StartHour       *int   `json:"startHour" validate:"required,min=0,max=23"`
	StartMinute     int    `json:"startMinute" validate:"min=0,max=59"`
	DurationMinutes int    `json:"durationMinutes" validate:"required,gt=0,lte=480"`
	Price           int64  `json:"price" validate:"gte=0"`
	Mode            string `json:"mode" validate:"required,oneof=ONE_TIME RECURRING"`
	Timezone        string `json:"timezone"`
}

func (req ruleRequest) input() service.RuleInput {
	return service.RuleInput{
		Weekday:         *req.Weekday,
		StartHour:       *req.StartHour,
		StartMinute:     req.StartMinute,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Mode:            model.SlotMode(req.Mode),
		Timezone:        req.Timezone,
	}
}

type slotRequest struct {
	StartTime       time.Time `json:"startTime" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,gt=0,lte=480"`
	Price           int64     `json:"price" validate:"gte=0"`
}

// CreateRule handles POST /api/rules.
func (h *AvailabilityHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	rule, err := h.slots.CreateRule(r.Context(), principal, req.input())
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /api/rules/{id}.
func (h *AvailabilityHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	var req ruleRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	rule, err := h.slots.UpdateRule(r.Context(), principal, id, req.input())
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/rules/{id}.
func (h *AvailabilityHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	if err := h.slots.DeleteRule(r.Context(), principal, id); err != nil {
		Error(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateSlot handles POST /api/slots.
func (h *AvailabilityHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	slot, err := h.slots.CreateSlot(r.Context(), principal, service.SlotInput{
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
	})
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusCreated, slot)
}

// BlockSlot handles POST /api/slots/{id}/block.
func (h *AvailabilityHandler) BlockSlot(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.slots.BlockSlot)
}

// UnblockSlot handles POST /api/slots/{id}/unblock.
func (h *AvailabilityHandler) UnblockSlot(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.slots.UnblockSlot)
}

func (h *AvailabilityHandler) toggle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, p model.Principal, id int64) (*model.Slot, error)) {
	id, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())

	slot, err := fn(r.Context(), principal, id)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, slot)
}

// ListHostSlots handles GET /api/hosts/{id}/slots?from=&to= (RFC 3339).
// The window defaults to the next four weeks.
func (h *AvailabilityHandler) ListHostSlots(w http.ResponseWriter, r *http.Request) {
	hostID, err := idParam(r, "id")
	if err != nil {
		Error(w, h.logger, err)
		return
	}

	from := time.Now().UTC()
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			Error(w, h.logger, model.Errorf(model.ErrBadRequest, "invalid from"))
			return
		}
	}
	to := from.Add(defaultListWindow)
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			Error(w, h.logger, model.Errorf(model.ErrBadRequest, "invalid to"))
			return
		}
	}
	if !to.After(from) {
		Error(w, h.logger, model.Errorf(model.ErrBadRequest, "to must be after from"))
		return
	}

	slots, err := h.slots.ListHostSlots(r.Context(), hostID, from, to)
	if err != nil {
		Error(w, h.logger, err)
		return
	}
	if slots == nil {
		slots = []*model.Slot{}
	}
	JSON(w, http.StatusOK, slots)
}
