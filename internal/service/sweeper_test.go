package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

func TestSweeper_ExpiresUnpaidHolds(t *testing.T) {
	e := newEnv(t)
	slot := e.adHocSlot(72*time.Hour, 1500)
	co := e.checkout(t, slot.ID)

	e.clock.Advance(29 * time.Minute)
	report, err := e.sweeper.Run(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Expired)
	assert.Equal(t, model.BookingStatusPending, e.booking(t, co.Booking.ID).Status)

	e.clock.Advance(time.Minute)
	report, err = e.sweeper.Run(e.ctx)
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Expired: 1}, report)
	booking := e.booking(t, co.Booking.ID)
	assert.Equal(t, model.BookingStatusCanceled, booking.Status)
	assert.Equal(t, "payment window expired", *booking.CancelReason)
	assert.Equal(t, model.PaymentStatusFailed, e.paymentOf(t, co.Booking.ID).Status)
	assert.Equal(t, model.SlotStatusAvailable, e.slot(t, slot.ID).Status)
	assert.Equal(t, []int64{co.Booking.ID}, e.effects.Canceled())

	report, err = e.sweeper.Run(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Expired, "second pass finds nothing")
}

func TestSweeper_LeavesPaidHoldsAlone(t *testing.T) {
	e := newEnv(t)
	co := e.checkout(t, e.adHocSlot(72*time.Hour, 1500).ID)
	e.pay(t, co, "pay_1")

	e.clock.Advance(time.Hour)
	report, err := e.sweeper.Run(e.ctx)
	require.NoError(t, err)

	assert.Equal(t, SweepReport{}, report)
	assert.Equal(t, model.BookingStatusConfirmed, e.booking(t, co.Booking.ID).Status)
}

func TestSweeper_CaptureFailureRetriedNextPass(t *testing.T) {
	e := newEnv(t)
	co := e.checkout(t, e.adHocSlot(72*time.Hour, 1500).ID)
	require.NoError(t, e.deliver(paymentEvent(t, gateway.EventPaymentAuthorized, "pay_1", co.OrderID, 150000)))
	e.clock.Advance(48 * time.Hour)
	e.gw.CaptureErr = assert.AnError

	report, err := e.sweeper.Run(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Failed: 1}, report)
	assert.Equal(t, model.PaymentStatusAuthorized, e.paymentOf(t, co.Booking.ID).Status)

	e.gw.CaptureErr = nil
	report, err = e.sweeper.Run(e.ctx)
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Captured: 1}, report)
	assert.Equal(t, model.BookingStatusConfirmed, e.booking(t, co.Booking.ID).Status)
	assert.Equal(t, []int64{co.Booking.ID}, e.effects.Confirmed())
}

func TestSweeper_ResumesPausedSubscriptions(t *testing.T) {
	e := newEnv(t)
	_, sc := subscribe(t, e)
	activate(t, e, sc)
	until := e.clock.Now().Add(14 * 24 * time.Hour)
	_, err := e.subs.Pause(e.ctx, e.learner, sc.Subscription.ID, &until)
	require.NoError(t, err)

	e.clock.Advance(7 * 24 * time.Hour)
	report, err := e.sweeper.Run(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Resumed)

	e.clock.Set(until)
	report, err = e.sweeper.Run(e.ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Resumed)
	sub, _ := e.store.Subscription(sc.Subscription.ID)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Nil(t, sub.PauseUntil)
	assert.Equal(t, []string{"sub_1"}, e.gw.Resumed)
}

func TestSweeper_OpenEndedPauseStays(t *testing.T) {
	e := newEnv(t)
	_, sc := subscribe(t, e)
	activate(t, e, sc)
	_, err := e.subs.Pause(e.ctx, e.learner, sc.Subscription.ID, nil)
	require.NoError(t, err)

	e.clock.Advance(365 * 24 * time.Hour)
	report, err := e.sweeper.Run(e.ctx)
	require.NoError(t, err)

	assert.Zero(t, report.Resumed)
	sub, _ := e.store.Subscription(sc.Subscription.ID)
	assert.Equal(t, model.SubscriptionStatusPaused, sub.Status)
}

func TestSweeper_ExpiresAbandonedSubscriptionCheckouts(t *testing.T) {
	t.Run("GivenCheckoutNeverCompleted_ThenCanceledAndSlotFreed", func(t *testing.T) {
		e := newEnv(t)
		rule, sc := subscribe(t, e)

		e.clock.Advance(29 * time.Minute)
		report, err := e.sweeper.Run(e.ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepReport{}, report)

		e.clock.Advance(time.Minute)
		report, err = e.sweeper.Run(e.ctx)
		require.NoError(t, err)

		assert.Equal(t, SweepReport{Expired: 1}, report)
		sub, _ := e.store.Subscription(sc.Subscription.ID)
		assert.Equal(t, model.SubscriptionStatusCanceled, sub.Status)
		require.NotNil(t, sub.EndAt)
		assert.Equal(t, e.clock.Now(), *sub.EndAt)
		booking := e.booking(t, sc.Booking.ID)
		assert.Equal(t, model.BookingStatusCanceled, booking.Status)
		assert.Equal(t, "payment window expired", *booking.CancelReason)
		assert.Equal(t, model.SlotStatusAvailable, e.slot(t, booking.SlotID).Status)
		assert.Equal(t, []string{"sub_1"}, e.gw.Canceled)
		assert.Equal(t, []int64{sc.Booking.ID}, e.effects.Canceled())

		report, err = e.sweeper.Run(e.ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepReport{}, report, "second pass finds nothing")

		next, err := e.subs.Create(e.ctx, e.other, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.SlotID, next.Booking.SlotID)
	})

	t.Run("GivenCheckoutExpired_ThenHostCanDeleteRule", func(t *testing.T) {
		e := newEnv(t)
		rule, _ := subscribe(t, e)
		require.ErrorIs(t, e.slots.DeleteRule(e.ctx, e.host, rule.ID), model.ErrRuleUnavailable)

		e.clock.Advance(30 * time.Minute)
		_, err := e.sweeper.Run(e.ctx)
		require.NoError(t, err)

		assert.NoError(t, e.slots.DeleteRule(e.ctx, e.host, rule.ID))
	})

	t.Run("GivenSessionStartsBeforeHoldWindow_ThenExpiredAtStart", func(t *testing.T) {
		e := newEnv(t)
		rule := e.weeklyRule(model.SlotModeRecurring)
		e.clock.Set(baseTime.Add(9*time.Hour - 10*time.Minute))
		sc, err := e.subs.Create(e.ctx, e.learner, rule.ID)
		require.NoError(t, err)
		require.Equal(t, baseTime.Add(9*time.Hour), sc.Booking.StartTime)

		e.clock.Advance(9 * time.Minute)
		report, err := e.sweeper.Run(e.ctx)
		require.NoError(t, err)
		assert.Zero(t, report.Expired)

		e.clock.Advance(time.Minute)
		report, err = e.sweeper.Run(e.ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.Expired)
		sub, _ := e.store.Subscription(sc.Subscription.ID)
		assert.Equal(t, model.SubscriptionStatusCanceled, sub.Status)
	})

	t.Run("GivenCheckoutAuthenticated_ThenKept", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		require.NoError(t, e.deliver(subscriptionEvent(t, gateway.EventSubscriptionAuthenticated, sc.ProviderSubscriptionID, "", 0)))

		e.clock.Advance(2 * time.Hour)
		report, err := e.sweeper.Run(e.ctx)
		require.NoError(t, err)

		assert.Equal(t, SweepReport{}, report)
		sub, _ := e.store.Subscription(sc.Subscription.ID)
		assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
		assert.Equal(t, model.BookingStatusPending, e.booking(t, sc.Booking.ID).Status)
		assert.Empty(t, e.gw.Canceled)
	})

	t.Run("GivenGatewayCancelFails_ThenRetriedNextPass", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		e.clock.Advance(time.Hour)
		e.gw.CancelErr = assert.AnError

		report, err := e.sweeper.Run(e.ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepReport{Failed: 1}, report)
		sub, _ := e.store.Subscription(sc.Subscription.ID)
		assert.Equal(t, model.SubscriptionStatusCreated, sub.Status)
		assert.Equal(t, model.BookingStatusPending, e.booking(t, sc.Booking.ID).Status)

		e.gw.CancelErr = nil
		report, err = e.sweeper.Run(e.ctx)
		require.NoError(t, err)

		assert.Equal(t, SweepReport{Expired: 1}, report)
		assert.Equal(t, model.BookingStatusCanceled, e.booking(t, sc.Booking.ID).Status)
	})
}
