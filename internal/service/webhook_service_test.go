package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

func TestReconciler_RejectsBadSignature(t *testing.T) {
	e := newEnv(t)
	co := e.checkout(t, e.adHocSlot(72*time.Hour, 1500).ID)
	raw := paymentEvent(t, gateway.EventPaymentCaptured, "pay_1", co.OrderID, 150000)

	err := e.reconciler.HandleProviderEvent(e.ctx, raw, "forged")

	assert.ErrorIs(t, err, model.ErrInvalidSignature)
	assert.Equal(t, model.BookingStatusPending, e.booking(t, co.Booking.ID).Status)
	assert.Zero(t, e.store.Events())
}

func TestReconciler_AcceptsWhatItCannotUse(t *testing.T) {
	tests := []struct {
		name string
		raw  func(t *testing.T) []byte
	}{
		{
			name: "GivenUnknownEventType",
			raw: func(t *testing.T) []byte {
				return paymentEvent(t, "refund.processed", "pay_1", "order_1", 100)
			},
		},
		{
			name: "GivenUnknownOrder",
			raw: func(t *testing.T) []byte {
				return paymentEvent(t, gateway.EventPaymentCaptured, "pay_9", "order_missing", 100)
			},
		},
		{
			name: "GivenUnknownSubscription",
			raw: func(t *testing.T) []byte {
				return subscriptionEvent(t, gateway.EventSubscriptionCharged, "sub_missing", "pay_9", 100)
			},
		},
		{
			name: "GivenMalformedBody",
			raw:  func(t *testing.T) []byte { return []byte(`{"event":`) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name+"_ThenNoError", func(t *testing.T) {
			e := newEnv(t)

			err := e.deliver(tt.raw(t))

			assert.NoError(t, err)
			assert.Empty(t, e.store.Payments())
			assert.Empty(t, e.effects.Confirmed())
		})
	}
}

func TestReconciler_PaymentCaptured(t *testing.T) {
	t.Run("GivenPendingBooking_ThenConfirmedOnce", func(t *testing.T) {
		e := newEnv(t)
		slot := e.adHocSlot(72*time.Hour, 1500)
		co := e.checkout(t, slot.ID)
		raw := paymentEvent(t, gateway.EventPaymentCaptured, "pay_1", co.OrderID, 150000)

		require.NoError(t, e.deliver(raw))
		require.NoError(t, e.deliver(raw))

		assert.Equal(t, model.BookingStatusConfirmed, e.booking(t, co.Booking.ID).Status)
		assert.Equal(t, model.SlotStatusBooked, e.slot(t, slot.ID).Status)
		payment := e.paymentOf(t, co.Booking.ID)
		assert.Equal(t, model.PaymentStatusCaptured, payment.Status)
		require.NotNil(t, payment.Method)
		assert.Equal(t, "upi", *payment.Method)
		assert.Equal(t, []int64{co.Booking.ID}, e.effects.Confirmed())
		assert.Equal(t, 1, e.store.Events(), "redelivery is recorded once")
	})

	t.Run("GivenClientAlreadyConfirmed_ThenNoSecondEffect", func(t *testing.T) {
		e := newEnv(t)
		co := e.checkout(t, e.adHocSlot(72*time.Hour, 1500).ID)
		e.pay(t, co, "pay_1")

		require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentCaptured, "pay_1", co.OrderID, 150000)))

		assert.Len(t, e.effects.Confirmed(), 1)
		assert.Len(t, e.store.Payments(), 1)
	})

	t.Run("GivenPaymentAlreadyFailed_ThenBookingStaysCanceled", func(t *testing.T) {
		e := newEnv(t)
		slot := e.adHocSlot(72*time.Hour, 1500)
		co := e.checkout(t, slot.ID)
		require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentFailed, "pay_1", co.OrderID, 150000)))

		err := e.deliver(paymentEvent(t, gateway.EventPaymentCaptured, "pay_1", co.OrderID, 150000))

		assert.NoError(t, err)
		assert.Equal(t, model.BookingStatusCanceled, e.booking(t, co.Booking.ID).Status)
		assert.Equal(t, model.PaymentStatusFailed, e.paymentOf(t, co.Booking.ID).Status)
		assert.Equal(t, model.SlotStatusAvailable, e.slot(t, slot.ID).Status)
	})
}

func TestReconciler_PaymentAuthorized(t *testing.T) {
	t.Run("GivenSessionInsideCaptureOffset_ThenCapturedImmediately", func(t *testing.T) {
		e := newEnv(t)
		co := e.checkout(t, e.adHocSlot(12*time.Hour, 1500).ID)

		require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentAuthorized, "pay_1", co.OrderID, 150000)))

		assert.Equal(t, []string{"pay_1"}, e.gw.Captures)
		assert.Equal(t, model.PaymentStatusCaptured, e.paymentOf(t, co.Booking.ID).Status)
		assert.Equal(t, model.BookingStatusConfirmed, e.booking(t, co.Booking.ID).Status)

		require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentCaptured, "pay_1", co.OrderID, 150000)))
		assert.Len(t, e.effects.Confirmed(), 1)
	})

	t.Run("GivenSessionFarAhead_ThenCaptureScheduled", func(t *testing.T) {
		e := newEnv(t)
		slot := e.adHocSlot(72*time.Hour, 1500)
		co := e.checkout(t, slot.ID)

		require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentAuthorized, "pay_1", co.OrderID, 150000)))

		payment := e.paymentOf(t, co.Booking.ID)
		assert.Equal(t, model.PaymentStatusAuthorized, payment.Status)
		require.NotNil(t, payment.ScheduledCaptureAt)
		assert.Equal(t, slot.StartTime.Add(-24*time.Hour), *payment.ScheduledCaptureAt)
		assert.Zero(t, e.gw.CaptureCount())
		assert.Equal(t, model.BookingStatusPending, e.booking(t, co.Booking.ID).Status)

		e.clock.Advance(48 * time.Hour)
		report, err := e.sweeper.Run(e.ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.Captured)
		assert.Equal(t, model.BookingStatusConfirmed, e.booking(t, co.Booking.ID).Status)
	})

	t.Run("GivenAuthorizedPayment_ThenHoldNoLongerExpires", func(t *testing.T) {
		e := newEnv(t)
		co := e.checkout(t, e.adHocSlot(72*time.Hour, 1500).ID)
		require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentAuthorized, "pay_1", co.OrderID, 150000)))

		e.clock.Advance(time.Hour)
		report, err := e.sweeper.Run(e.ctx)
		require.NoError(t, err)

		assert.Zero(t, report.Expired)
		assert.Equal(t, model.BookingStatusPending, e.booking(t, co.Booking.ID).Status)
	})
}

func TestReconciler_PaymentFailed(t *testing.T) {
	t.Run("GivenPendingBooking_ThenReleased", func(t *testing.T) {
		e := newEnv(t)
		slot := e.adHocSlot(72*time.Hour, 1500)
		co := e.checkout(t, slot.ID)

		require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentFailed, "pay_1", co.OrderID, 150000)))

		booking := e.booking(t, co.Booking.ID)
		assert.Equal(t, model.BookingStatusCanceled, booking.Status)
		require.NotNil(t, booking.CancelReason)
		assert.Equal(t, "payment failed", *booking.CancelReason)
		assert.Equal(t, model.SlotStatusAvailable, e.slot(t, slot.ID).Status)
		assert.Equal(t, []int64{co.Booking.ID}, e.effects.Canceled())

		_, err := e.bookings.Create(e.ctx, e.other, slot.ID)
		assert.NoError(t, err, "released slot can be booked again")
	})

	t.Run("GivenCapturedPayment_ThenIgnored", func(t *testing.T) {
		e := newEnv(t)
		co := e.checkout(t, e.adHocSlot(72*time.Hour, 1500).ID)
		e.pay(t, co, "pay_1")

		require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentFailed, "pay_1", co.OrderID, 150000)))

		assert.Equal(t, model.PaymentStatusCaptured, e.paymentOf(t, co.Booking.ID).Status)
		assert.Equal(t, model.BookingStatusConfirmed, e.booking(t, co.Booking.ID).Status)
		assert.Empty(t, e.effects.Canceled())
	})
}

// subscribe creates a subscription on a fresh Monday 18:00 rule with the clock on the Sunday before.
func subscribe(t *testing.T, e *env) (model.AvailabilityRule, *SubscriptionCheckout) {
	t.Helper()
	e.clock.Set(baseTime.Add(-24 * time.Hour))
	rule := e.weeklyRule(model.SlotModeRecurring)
	sc, err := e.subs.Create(e.ctx, e.learner, rule.ID)
	require.NoError(t, err)
	return rule, sc
}

func TestReconciler_SubscriptionCharged(t *testing.T) {
	t.Run("GivenWeeklyCharges_ThenEachConfirmsAndRollsOver", func(t *testing.T) {
		e := newEnv(t)
		rule, sc := subscribe(t, e)

		const charges = 4
		for i := 0; i < charges; i++ {
			paymentID := "pay_sub_" + string(rune('a'+i))
			require.NoError(t, e.deliver(subscriptionEvent(t, gateway.EventSubscriptionCharged, sc.ProviderSubscriptionID, paymentID, 120000)))
			e.clock.Advance(7 * 24 * time.Hour)
		}

		bookings := e.store.Bookings()
		require.Len(t, bookings, charges+1)
		seen := map[time.Time]bool{}
		for i, b := range bookings {
			assert.False(t, seen[b.StartTime], "duplicate session at %s", b.StartTime)
			seen[b.StartTime] = true
			assert.Equal(t, baseTime.Add(9*time.Hour).AddDate(0, 0, 7*i), b.StartTime)
			if i < charges {
				assert.Equal(t, model.BookingStatusConfirmed, b.Status)
			} else {
				assert.Equal(t, model.BookingStatusPending, b.Status)
			}
		}
		assert.Len(t, e.ruleSlots(rule.ID), charges+1)
		assert.Len(t, e.store.Payments(), charges)
		for _, p := range e.store.Payments() {
			assert.Equal(t, model.PaymentStatusCaptured, p.Status)
			assert.Equal(t, int64(1200), p.Amount)
		}
		assert.Len(t, e.effects.Confirmed(), charges)

		sub, ok := e.store.Subscription(sc.Subscription.ID)
		require.True(t, ok)
		assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
		require.NotNil(t, sub.CurrentBookingID)
		assert.Equal(t, bookings[charges].ID, *sub.CurrentBookingID)
	})

	t.Run("GivenReplayedCharge_ThenNothingChanges", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		raw := subscriptionEvent(t, gateway.EventSubscriptionCharged, sc.ProviderSubscriptionID, "pay_sub_1", 120000)
		require.NoError(t, e.deliver(raw))

		require.NoError(t, e.deliver(raw))
		require.NoError(t, e.deliver(subscriptionEvent(t, gateway.EventSubscriptionCharged, sc.ProviderSubscriptionID, "pay_sub_1", 120001)))

		assert.Len(t, e.store.Bookings(), 2)
		assert.Len(t, e.store.Payments(), 1)
		assert.Len(t, e.effects.Confirmed(), 1)
	})

	t.Run("GivenRuleRetired_ThenConfirmedWithoutRollover", func(t *testing.T) {
		e := newEnv(t)
		rule, sc := subscribe(t, e)
		rule.IsActive = false
		e.store.AddRule(rule)

		require.NoError(t, e.deliver(subscriptionEvent(t, gateway.EventSubscriptionCharged, sc.ProviderSubscriptionID, "pay_sub_1", 120000)))

		assert.Equal(t, model.BookingStatusConfirmed, e.booking(t, sc.Booking.ID).Status)
		assert.Len(t, e.store.Bookings(), 1)
		sub, _ := e.store.Subscription(sc.Subscription.ID)
		assert.Equal(t, sc.Booking.ID, *sub.CurrentBookingID)
	})

	t.Run("GivenRolloverFails_ThenRetryApplies", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		raw := subscriptionEvent(t, gateway.EventSubscriptionCharged, sc.ProviderSubscriptionID, "pay_sub_1", 120000)
		e.store.FailOn("bookings.create", assert.AnError)

		err := e.deliver(raw)
		require.ErrorIs(t, err, assert.AnError)
		assert.Empty(t, e.store.Payments())
		assert.Equal(t, model.BookingStatusPending, e.booking(t, sc.Booking.ID).Status)

		require.NoError(t, e.deliver(raw))
		assert.Len(t, e.store.Payments(), 1)
		assert.Len(t, e.store.Bookings(), 2)
	})
}

func TestReconciler_SubscriptionStatus(t *testing.T) {
	t.Run("GivenLifecycleEvents_ThenStatusFollows", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		id := sc.ProviderSubscriptionID

		steps := []struct {
			event string
			want  model.SubscriptionStatus
		}{
			{gateway.EventSubscriptionActivated, model.SubscriptionStatusActive},
			{gateway.EventSubscriptionPaused, model.SubscriptionStatusPaused},
			{gateway.EventSubscriptionResumed, model.SubscriptionStatusActive},
			{gateway.EventSubscriptionHalted, model.SubscriptionStatusPastDue},
			{gateway.EventSubscriptionActivated, model.SubscriptionStatusActive},
		}
		for _, step := range steps {
			require.NoError(t, e.deliver(subscriptionEvent(t, step.event, id, "", 0)))
			sub, _ := e.store.Subscription(sc.Subscription.ID)
			assert.Equal(t, step.want, sub.Status, step.event)
		}
	})

	t.Run("GivenCancelled_ThenPendingBookingReleased", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)

		require.NoError(t, e.deliver(subscriptionEvent(t, gateway.EventSubscriptionCancelled, sc.ProviderSubscriptionID, "", 0)))

		sub, _ := e.store.Subscription(sc.Subscription.ID)
		assert.Equal(t, model.SubscriptionStatusCanceled, sub.Status)
		assert.NotNil(t, sub.EndAt)
		assert.Equal(t, model.BookingStatusCanceled, e.booking(t, sc.Booking.ID).Status)
		assert.Equal(t, model.SlotStatusAvailable, e.slot(t, sc.Booking.SlotID).Status)
		assert.Equal(t, []int64{sc.Booking.ID}, e.effects.Canceled())

		require.NoError(t, e.deliver(subscriptionEvent(t, gateway.EventSubscriptionActivated, sc.ProviderSubscriptionID, "", 0)))
		sub, _ = e.store.Subscription(sc.Subscription.ID)
		assert.Equal(t, model.SubscriptionStatusCanceled, sub.Status, "canceled is final")
	})
}
