package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

// Reconciler applies gateway webhooks to the ledger. Every handler tolerates redelivery
// and out-of-order arrival by checking the current entity state before changing it.
type Reconciler struct {
	store      ledger.Store
	gateway    gateway.Gateway
	bookings   *BookingService
	dispatcher Dispatcher
	policy     Policy
	logger     *zap.Logger
}

// NewReconciler creates the webhook event reconciler.
func NewReconciler(store ledger.Store, gw gateway.Gateway, bookings *BookingService, dispatcher Dispatcher, policy Policy, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		gateway:    gw,
		bookings:   bookings,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
	}
}

// errReplayedCharge aborts the charge transaction when the payment id is already stored.
var errReplayedCharge = errors.New("charge already recorded")

var subscriptionStatuses = map[string]model.SubscriptionStatus{
	gateway.EventSubscriptionAuthenticated: model.SubscriptionStatusActive,
	gateway.EventSubscriptionActivated:     model.SubscriptionStatusActive,
	gateway.EventSubscriptionResumed:       model.SubscriptionStatusActive,
	gateway.EventSubscriptionPaused:        model.SubscriptionStatusPaused,
	gateway.EventSubscriptionCancelled:     model.SubscriptionStatusCanceled,
	gateway.EventSubscriptionCompleted:     model.SubscriptionStatusCanceled,
	gateway.EventSubscriptionPending:       model.SubscriptionStatusPastDue,
	gateway.EventSubscriptionHalted:        model.SubscriptionStatusPastDue,
}

// HandleProviderEvent verifies and applies one webhook delivery.
// Only a bad signature or a storage failure is returned; unknown events and unknown
// references are accepted so the provider stops retrying.
func (r *Reconciler) HandleProviderEvent(ctx context.Context, raw []byte, signature string) error {
	ctx, span := tracer.Start(ctx, "webhooks.handle")
	defer span.End()

	if !r.gateway.VerifyWebhookSignature(raw, signature) {
		r.logger.Warn("Webhook signature rejected", zap.Int("bytes", len(raw)))
		return model.ErrInvalidSignature
	}

	ev, err := gateway.ParseEvent(raw)
	if err != nil {
		r.logger.Warn("Webhook body not understood", zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.String("event.type", ev.Type))

	switch {
	case ev.Type == gateway.EventPaymentAuthorized:
		err = r.paymentAuthorized(ctx, ev, raw)
	case ev.Type == gateway.EventPaymentCaptured:
		err = r.paymentCaptured(ctx, ev, raw)
	case ev.Type == gateway.EventPaymentFailed:
		err = r.paymentFailed(ctx, ev, raw)
	case ev.Type == gateway.EventSubscriptionCharged:
		err = r.subscriptionCharged(ctx, ev, raw)
	case subscriptionStatuses[ev.Type] != "":
		err = r.subscriptionStatus(ctx, ev)
	default:
		r.logger.Debug("Webhook event ignored", zap.String("event", ev.Type))
	}
	if err != nil {
		return fmt.Errorf("handle %s: %w", ev.Type, err)
	}

	r.audit(ctx, ev.Type, raw)
	return nil
}

// audit keeps one provider_events row per distinct body; failures are only logged.
func (r *Reconciler) audit(ctx context.Context, eventType string, raw []byte) {
	sum := sha256.Sum256(raw)
	_, err := r.store.Read().Events().Record(ctx, &model.ProviderEvent{
		Provider:  ProviderRazorpay,
		EventKey:  hex.EncodeToString(sum[:]),
		EventType: eventType,
		Payload:   raw,
	})
	if err != nil {
		r.logger.Warn("Failed to record provider event", zap.String("event", eventType), zap.Error(err))
	}
}

func (r *Reconciler) paymentAuthorized(ctx context.Context, ev *gateway.Event, raw []byte) error {
	if ev.Payment == nil {
		return nil
	}
	now := r.policy.now()

	var paymentID int64
	var captureNow bool
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		payment, err := tx.Payments().FindByProviderRefForUpdate(ctx, ev.Payment.ID, ev.Payment.OrderID)
		if err != nil {
			return err
		}
		if payment == nil {
			r.logger.Info("Authorized payment not found", zap.String("payment_id", ev.Payment.ID))
			return nil
		}
		if payment.Status != model.PaymentStatusCreated && payment.Status != model.PaymentStatusAuthorized {
			return nil
		}

		payment.Status = model.PaymentStatusAuthorized
		payment.ProviderPaymentID = &ev.Payment.ID
		if ev.Payment.Method != "" {
			payment.Method = &ev.Payment.Method
		}
		payment.RawPayload = raw

		if payment.ScheduledCaptureAt == nil && payment.BookingID != nil {
			booking, err := tx.Bookings().GetByID(ctx, *payment.BookingID)
			if err != nil {
				return err
			}
			if booking != nil {
				payment.ScheduledCaptureAt = ptr(booking.StartTime.Add(-r.policy.CaptureOffset))
			}
		}
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}

		paymentID = payment.ID
		captureNow = payment.ScheduledCaptureAt != nil && !payment.ScheduledCaptureAt.After(now)
		return nil
	})
	if err != nil {
		return err
	}

	if captureNow {
		if err := r.bookings.CapturePayment(ctx, paymentID); err != nil {
			// Left AUTHORIZED; the sweeper retries on its next pass.
			r.logger.Warn("Immediate capture failed", zap.Int64("payment_id", paymentID), zap.Error(err))
		}
	}
	return nil
}

func (r *Reconciler) paymentCaptured(ctx context.Context, ev *gateway.Event, raw []byte) error {
	if ev.Payment == nil {
		return nil
	}
	now := r.policy.now()

	var confirmed *model.Booking
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		payment, err := tx.Payments().FindByProviderRefForUpdate(ctx, ev.Payment.ID, ev.Payment.OrderID)
		if err != nil {
			return err
		}
		if payment == nil {
			r.logger.Info("Captured payment not found", zap.String("payment_id", ev.Payment.ID))
			return nil
		}
		if ev.Payment.Method != "" {
			payment.Method = &ev.Payment.Method
		}
		confirmed, err = markCapturedTx(ctx, tx, payment, ev.Payment.ID, raw, now)
		if errors.Is(err, model.ErrInvalidState) {
			r.logger.Warn("Capture reported for failed payment",
				zap.Int64("payment_id", payment.ID),
				zap.String("provider_payment_id", ev.Payment.ID),
			)
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	if confirmed != nil {
		r.logger.Info("Booking confirmed by webhook", zap.Int64("booking_id", confirmed.ID))
		r.dispatcher.BookingConfirmed(confirmed)
	}
	return nil
}

func (r *Reconciler) paymentFailed(ctx context.Context, ev *gateway.Event, raw []byte) error {
	if ev.Payment == nil {
		return nil
	}

	var released *model.Booking
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		payment, err := tx.Payments().FindByProviderRefForUpdate(ctx, ev.Payment.ID, ev.Payment.OrderID)
		if err != nil {
			return err
		}
		if payment == nil || !payment.CanMoveTo(model.PaymentStatusFailed) {
			return nil
		}

		payment.Status = model.PaymentStatusFailed
		payment.ProviderPaymentID = &ev.Payment.ID
		payment.RawPayload = raw
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}
		if payment.BookingID == nil {
			return nil
		}
		released, err = releasePendingTx(ctx, tx, *payment.BookingID, "payment failed")
		return err
	})
	if err != nil {
		return err
	}

	if released != nil {
		r.logger.Info("Booking released after failed payment", zap.Int64("booking_id", released.ID))
		r.dispatcher.BookingCanceled(released)
	}
	return nil
}

func refreshSubscription(sub *model.Subscription, entity *gateway.SubscriptionEntity) {
	if t := gateway.Unix(entity.StartAt); t != nil {
		sub.StartAt = t
	}
	if t := gateway.Unix(entity.EndAt); t != nil {
		sub.EndAt = t
	}
	if t := gateway.Unix(entity.ChargeAt); t != nil {
		sub.NextChargeAt = t
	}
}

func (r *Reconciler) subscriptionStatus(ctx context.Context, ev *gateway.Event) error {
	if ev.Subscription == nil {
		return nil
	}
	status := subscriptionStatuses[ev.Type]
	now := r.policy.now()

	var released *model.Booking
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		sub, err := tx.Subscriptions().GetByProviderIDForUpdate(ctx, ev.Subscription.ID)
		if err != nil {
			return err
		}
		if sub == nil {
			r.logger.Info("Subscription not found", zap.String("provider_subscription_id", ev.Subscription.ID))
			return nil
		}
		if !sub.Live() {
			return nil
		}

		refreshSubscription(sub, ev.Subscription)
		if status == model.SubscriptionStatusCanceled {
			released, err = cancelSubscriptionTx(ctx, tx, sub, now, "subscription ended")
			return err
		}
		sub.Status = status
		if status == model.SubscriptionStatusActive {
			sub.PauseUntil = nil
		}
		return tx.Subscriptions().Update(ctx, sub)
	})
	if err != nil {
		return err
	}

	if released != nil {
		r.dispatcher.BookingCanceled(released)
	}
	return nil
}

// subscriptionCharged records the charge, confirms the current booking and rolls the
// subscription over to its next occurrence, all in one transaction. A charge whose
// provider payment id is already recorded is a replay and changes nothing.
func (r *Reconciler) subscriptionCharged(ctx context.Context, ev *gateway.Event, raw []byte) error {
	if ev.Subscription == nil || ev.Payment == nil || ev.Payment.ID == "" {
		r.logger.Warn("Charge event without subscription or payment")
		return nil
	}
	now := r.policy.now()

	var confirmed, next *model.Booking
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		sub, err := tx.Subscriptions().GetByProviderIDForUpdate(ctx, ev.Subscription.ID)
		if err != nil {
			return err
		}
		if sub == nil {
			r.logger.Info("Charged subscription not found", zap.String("provider_subscription_id", ev.Subscription.ID))
			return nil
		}

		seen, err := tx.Payments().FindByProviderRefForUpdate(ctx, ev.Payment.ID, "")
		if err != nil {
			return err
		}
		if seen != nil {
			return nil
		}

		var current *model.Booking
		if sub.CurrentBookingID != nil {
			current, err = tx.Bookings().GetByIDForUpdate(ctx, *sub.CurrentBookingID)
			if err != nil {
				return err
			}
		}

		payment := &model.Payment{
			SubscriptionID:    &sub.ID,
			Provider:          ProviderRazorpay,
			ProviderPaymentID: &ev.Payment.ID,
			Amount:            gateway.FromMinor(ev.Payment.Amount),
			Currency:          ev.Payment.Currency,
			Status:            model.PaymentStatusCaptured,
			CapturedAt:        &now,
			RawPayload:        raw,
		}
		if current != nil {
			payment.BookingID = &current.ID
		}
		if ev.Payment.OrderID != "" {
			payment.ProviderOrderID = &ev.Payment.OrderID
		}
		if ev.Payment.Method != "" {
			payment.Method = &ev.Payment.Method
		}
		if payment.Currency == "" {
			payment.Currency = r.policy.Currency
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				return errReplayedCharge
			}
			return err
		}

		if current != nil {
			confirmed, err = confirmBookingTx(ctx, tx, current.ID)
			if err != nil {
				return err
			}
		}

		refreshSubscription(sub, ev.Subscription)
		if !sub.Live() {
			return tx.Subscriptions().Update(ctx, sub)
		}
		sub.Status = model.SubscriptionStatusActive

		from := now
		if current != nil && current.StartTime.After(from) {
			from = current.StartTime
		}
		slot, err := findOrCreateNextSlotTx(ctx, tx, sub.RuleID, from)
		if errors.Is(err, model.ErrRuleUnavailable) {
			r.logger.Warn("Rule unavailable, subscription not rolled over",
				zap.Int64("subscription_id", sub.ID),
				zap.Int64("rule_id", sub.RuleID),
			)
			return tx.Subscriptions().Update(ctx, sub)
		}
		if err != nil {
			return err
		}

		next, err = reserveSlotTx(ctx, tx, slot, sub.LearnerID, &sub.ID, r.policy)
		if err != nil {
			return err
		}
		sub.CurrentBookingID = &next.ID
		return tx.Subscriptions().Update(ctx, sub)
	})
	if errors.Is(err, errReplayedCharge) {
		return nil
	}
	if err != nil {
		return err
	}

	if confirmed != nil {
		r.dispatcher.BookingConfirmed(confirmed)
	}
	if next != nil {
		r.logger.Info("Subscription rolled over",
			zap.String("provider_subscription_id", ev.Subscription.ID),
			zap.Int64("next_booking_id", next.ID),
			zap.Time("next_start", next.StartTime),
		)
	}
	return nil
}
