package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

// Transaction-scoped state changes shared by the booking, webhook and sweep paths.
// Each one is a no-op when the entity already reached the target state.

// reserveSlotTx books an AVAILABLE slot for the learner as a PENDING booking.
// A CANCELED booking left on the slot is removed first, together with its uncaptured payments.
func reserveSlotTx(ctx context.Context, tx ledger.Repos, slot *model.Slot, learnerID int64, subscriptionID *int64, policy Policy) (*model.Booking, error) {
	if slot.Status != model.SlotStatusAvailable {
		return nil, model.ErrSlotUnavailable
	}

	prior, err := tx.Bookings().GetBySlotID(ctx, slot.ID)
	if err != nil {
		return nil, fmt.Errorf("get slot booking: %w", err)
	}
	if prior != nil {
		if prior.Status != model.BookingStatusCanceled {
			return nil, model.ErrSlotUnavailable
		}
		if _, err := tx.Payments().DeleteByBooking(ctx, prior.ID); err != nil {
			return nil, fmt.Errorf("delete orphan payments: %w", err)
		}
		if err := tx.Bookings().Delete(ctx, prior.ID); err != nil {
			return nil, fmt.Errorf("delete canceled booking: %w", err)
		}
	}

	booking := &model.Booking{
		HostID:         slot.HostID,
		LearnerID:      learnerID,
		SlotID:         slot.ID,
		SubscriptionID: subscriptionID,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		Price:          slot.Price,
		PlatformFee:    policy.PlatformFee,
		CommissionRate: policy.CommissionRate,
		Status:         model.BookingStatusPending,
	}
	if err := tx.Bookings().Create(ctx, booking); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return nil, model.ErrSlotUnavailable
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	if err := tx.Slots().UpdateStatus(ctx, slot.ID, model.SlotStatusReserved); err != nil {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	slot.Status = model.SlotStatusReserved

	if _, err := tx.Conversations().Ensure(ctx, booking.HostID, booking.LearnerID, booking.ID); err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}

	return booking, nil
}

// markCapturedTx moves the payment to CAPTURED and confirms its PENDING booking.
// It returns the booking when this call confirmed it.
func markCapturedTx(ctx context.Context, tx ledger.Repos, payment *model.Payment, providerPaymentID string, raw []byte, now time.Time) (*model.Booking, error) {
	switch payment.Status {
	case model.PaymentStatusCaptured:
		return nil, nil
	case model.PaymentStatusFailed:
		return nil, model.Errorf(model.ErrInvalidState, "payment %d already failed", payment.ID)
	}

	payment.Status = model.PaymentStatusCaptured
	payment.CapturedAt = &now
	if providerPaymentID != "" {
		payment.ProviderPaymentID = &providerPaymentID
	}
	if len(raw) > 0 {
		payment.RawPayload = raw
	}
	if err := tx.Payments().Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	if payment.BookingID == nil {
		return nil, nil
	}
	return confirmBookingTx(ctx, tx, *payment.BookingID)
}

// confirmBookingTx confirms a PENDING booking and marks its slot BOOKED.
func confirmBookingTx(ctx context.Context, tx ledger.Repos, bookingID int64) (*model.Booking, error) {
	booking, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	if booking == nil || booking.Status != model.BookingStatusPending {
		return nil, nil
	}

	if err := tx.Bookings().UpdateStatus(ctx, booking.ID, model.BookingStatusConfirmed, nil); err != nil {
		return nil, fmt.Errorf("confirm booking: %w", err)
	}
	booking.Status = model.BookingStatusConfirmed

	if err := tx.Slots().UpdateStatus(ctx, booking.SlotID, model.SlotStatusBooked); err != nil {
		return nil, fmt.Errorf("book slot: %w", err)
	}
	return booking, nil
}

// releaseBookingTx cancels a booking, frees its slot and fails any uncaptured payment.
func releaseBookingTx(ctx context.Context, tx ledger.Repos, booking *model.Booking, reason string) error {
	if err := tx.Bookings().UpdateStatus(ctx, booking.ID, model.BookingStatusCanceled, &reason); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	booking.Status = model.BookingStatusCanceled
	booking.CancelReason = &reason

	slot, err := tx.Slots().GetByIDForUpdate(ctx, booking.SlotID)
	if err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	if slot != nil && slot.Locked() {
		if err := tx.Slots().UpdateStatus(ctx, slot.ID, model.SlotStatusAvailable); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
	}

	payment, err := tx.Payments().GetByBookingForUpdate(ctx, booking.ID)
	if err != nil {
		return fmt.Errorf("lock payment: %w", err)
	}
	if payment != nil && payment.CanMoveTo(model.PaymentStatusFailed) {
		payment.Status = model.PaymentStatusFailed
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return fmt.Errorf("fail payment: %w", err)
		}
	}
	return nil
}

// releasePendingTx cancels the booking only while it is still PENDING.
func releasePendingTx(ctx context.Context, tx ledger.Repos, bookingID int64, reason string) (*model.Booking, error) {
	booking, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	if booking == nil || booking.Status != model.BookingStatusPending {
		return nil, nil
	}
	if err := releaseBookingTx(ctx, tx, booking, reason); err != nil {
		return nil, err
	}
	return booking, nil
}

// findOrCreateNextSlotTx returns the earliest AVAILABLE slot of the rule after from,
// minting the next calendar occurrence when none exists. The rule row lock and the
// (rule_id, start_time) constraint keep concurrent callers on the same slot.
func findOrCreateNextSlotTx(ctx context.Context, tx ledger.Repos, ruleID int64, from time.Time) (*model.Slot, error) {
	rule, err := tx.Rules().GetByIDForUpdate(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("lock rule: %w", err)
	}
	if rule == nil || !rule.IsActive {
		return nil, model.Errorf(model.ErrRuleUnavailable, "rule %d is not active", ruleID)
	}

	slot, err := tx.Slots().NextAvailableForRule(ctx, rule.ID, from)
	if err != nil {
		return nil, fmt.Errorf("next available slot: %w", err)
	}
	if slot != nil {
		return slot, nil
	}

	after := from
	for i := 0; i < maxOccurrenceScan; i++ {
		start := nextOccurrence(rule, after)
		slot := slotFromRule(rule, start)
		if _, err := tx.Slots().Ensure(ctx, slot); err != nil {
			return nil, fmt.Errorf("ensure slot: %w", err)
		}
		if slot.Status == model.SlotStatusAvailable {
			return slot, nil
		}
		after = start
	}
	return nil, model.Errorf(model.ErrRuleUnavailable, "rule %d has no free occurrence", ruleID)
}

// maxOccurrenceScan bounds the search over taken or blocked occurrences (one year of weeks).
const maxOccurrenceScan = 52
