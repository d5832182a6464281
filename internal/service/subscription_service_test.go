package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

func TestSubscriptionService_Create(t *testing.T) {
	t.Run("GivenRecurringRule_ThenFirstSessionReservedAndChargeScheduled", func(t *testing.T) {
		e := newEnv(t)
		rule, sc := subscribe(t, e)

		require.Len(t, e.gw.Plans, 1)
		assert.Equal(t, int64(1200), e.gw.Plans[0].Amount)
		assert.Equal(t, "weekly", e.gw.Plans[0].Period)
		require.Len(t, e.gw.Subscriptions, 1)
		req := e.gw.Subscriptions[0]
		assert.Equal(t, 52, req.TotalCount)
		require.NotNil(t, req.StartAt)
		assert.Equal(t, time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), *req.StartAt)

		assert.Equal(t, model.SubscriptionStatusCreated, sc.Subscription.Status)
		assert.Equal(t, rule.ID, sc.Subscription.RuleID)
		assert.Equal(t, "sub_1", sc.ProviderSubscriptionID)
		assert.Equal(t, model.BookingStatusPending, sc.Booking.Status)
		assert.Equal(t, time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), sc.Booking.StartTime)
		require.NotNil(t, sc.Booking.SubscriptionID)
		assert.Equal(t, sc.Subscription.ID, *sc.Booking.SubscriptionID)
		assert.Equal(t, model.SlotStatusReserved, e.slot(t, sc.Booking.SlotID).Status)
		assert.Empty(t, e.store.Payments(), "sessions are paid by the subscription charge")

		stored, ok := e.store.Subscription(sc.Subscription.ID)
		require.True(t, ok)
		require.NotNil(t, stored.CurrentBookingID)
		assert.Equal(t, sc.Booking.ID, *stored.CurrentBookingID)
	})

	t.Run("GivenFirstSessionTooClose_ThenChargedImmediately", func(t *testing.T) {
		e := newEnv(t)
		rule := e.weeklyRule(model.SlotModeRecurring)

		_, err := e.subs.Create(e.ctx, e.learner, rule.ID)
		require.NoError(t, err)

		require.Len(t, e.gw.Subscriptions, 1)
		assert.Nil(t, e.gw.Subscriptions[0].StartAt)
	})

	t.Run("GivenOneTimeRule_ThenRuleUnavailable", func(t *testing.T) {
		e := newEnv(t)
		rule := e.weeklyRule(model.SlotModeOneTime)

		_, err := e.subs.Create(e.ctx, e.learner, rule.ID)

		assert.ErrorIs(t, err, model.ErrRuleUnavailable)
		assert.Empty(t, e.gw.Plans)
	})

	t.Run("GivenOwnRule_ThenBadRequest", func(t *testing.T) {
		e := newEnv(t)
		rule := e.weeklyRule(model.SlotModeRecurring)

		_, err := e.subs.Create(e.ctx, e.host, rule.ID)

		assert.ErrorIs(t, err, model.ErrBadRequest)
	})

	t.Run("GivenLiveSubscription_ThenNotReady", func(t *testing.T) {
		e := newEnv(t)
		rule, _ := subscribe(t, e)

		_, err := e.subs.Create(e.ctx, e.other, rule.ID)

		assert.ErrorIs(t, err, model.ErrSubscriptionNotReady)
		assert.Len(t, e.gw.Subscriptions, 1)
	})

	t.Run("GivenGatewayDown_ThenNothingStored", func(t *testing.T) {
		e := newEnv(t)
		rule := e.weeklyRule(model.SlotModeRecurring)
		e.gw.SubscriptionErr = assert.AnError

		_, err := e.subs.Create(e.ctx, e.learner, rule.ID)

		assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
		assert.Empty(t, e.store.Bookings())
		assert.Empty(t, e.ruleSlots(rule.ID))
	})

	t.Run("GivenLedgerFailure_ThenGatewaySubscriptionCanceled", func(t *testing.T) {
		e := newEnv(t)
		rule := e.weeklyRule(model.SlotModeRecurring)
		e.store.FailOn("bookings.create", assert.AnError)

		_, err := e.subs.Create(e.ctx, e.learner, rule.ID)

		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, []string{"sub_1"}, e.gw.Canceled)
		assert.Empty(t, e.store.Bookings())
		live, err := e.store.Read().Subscriptions().GetLiveByRule(e.ctx, rule.ID)
		require.NoError(t, err)
		assert.Nil(t, live)
	})
}

// activate moves the subscription to ACTIVE the way the provider does.
func activate(t *testing.T, e *env, sc *SubscriptionCheckout) {
	t.Helper()
	require.NoError(t, e.deliver(subscriptionEvent(t, gateway.EventSubscriptionActivated, sc.ProviderSubscriptionID, "", 0)))
}

func TestSubscriptionService_PauseResume(t *testing.T) {
	t.Run("GivenCreated_ThenPauseNotReady", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)

		_, err := e.subs.Pause(e.ctx, e.learner, sc.Subscription.ID, nil)

		assert.ErrorIs(t, err, model.ErrSubscriptionNotReady)
		assert.Empty(t, e.gw.Paused)
	})

	t.Run("GivenActive_ThenPausedAndResumed", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		activate(t, e, sc)

		paused, err := e.subs.Pause(e.ctx, e.learner, sc.Subscription.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, model.SubscriptionStatusPaused, paused.Status)
		assert.Equal(t, []string{"sub_1"}, e.gw.Paused)

		_, err = e.subs.Pause(e.ctx, e.learner, sc.Subscription.ID, nil)
		assert.ErrorIs(t, err, model.ErrSubscriptionNotReady)

		resumed, err := e.subs.Resume(e.ctx, e.host, sc.Subscription.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SubscriptionStatusActive, resumed.Status)
		assert.Equal(t, []string{"sub_1"}, e.gw.Resumed)
	})

	t.Run("GivenPauseEndInPast_ThenBadRequest", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		activate(t, e, sc)
		past := e.clock.Now().Add(-time.Hour)

		_, err := e.subs.Pause(e.ctx, e.learner, sc.Subscription.ID, &past)

		assert.ErrorIs(t, err, model.ErrBadRequest)
	})

	t.Run("GivenGatewayDown_ThenStaysActive", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		activate(t, e, sc)
		e.gw.PauseErr = assert.AnError

		_, err := e.subs.Pause(e.ctx, e.learner, sc.Subscription.ID, nil)

		assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
		sub, _ := e.store.Subscription(sc.Subscription.ID)
		assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	})

	t.Run("GivenStranger_ThenForbidden", func(t *testing.T) {
		e := newEnv(t)
		_, sc := subscribe(t, e)
		activate(t, e, sc)

		_, err := e.subs.Pause(e.ctx, e.other, sc.Subscription.ID, nil)

		assert.ErrorIs(t, err, model.ErrForbidden)
	})
}

func TestSubscriptionService_Cancel(t *testing.T) {
	e := newEnv(t)
	_, sc := subscribe(t, e)

	sub, err := e.subs.Cancel(e.ctx, e.learner, sc.Subscription.ID)
	require.NoError(t, err)

	assert.Equal(t, model.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.EndAt)
	assert.Equal(t, []string{"sub_1"}, e.gw.Canceled)
	assert.Equal(t, model.BookingStatusCanceled, e.booking(t, sc.Booking.ID).Status)
	assert.Equal(t, model.SlotStatusAvailable, e.slot(t, sc.Booking.SlotID).Status)
	assert.Equal(t, []int64{sc.Booking.ID}, e.effects.Canceled())

	_, err = e.subs.Cancel(e.ctx, e.learner, sc.Subscription.ID)
	assert.ErrorIs(t, err, model.ErrSubscriptionNotReady)

	again, err := e.subs.Create(e.ctx, e.other, sc.Subscription.RuleID)
	require.NoError(t, err, "rule is free once the subscription ends")
	assert.Equal(t, sc.Booking.SlotID, again.Booking.SlotID)
}

func TestSubscriptionService_Get(t *testing.T) {
	e := newEnv(t)
	_, sc := subscribe(t, e)

	got, err := e.subs.Get(e.ctx, e.host, sc.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.Subscription.ID, got.ID)

	_, err = e.subs.Get(e.ctx, e.other, sc.Subscription.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = e.subs.Get(e.ctx, e.learner, 4242)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
