package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/gateway/gatewaytest"
	"github.com/Freeeeeet/mentorbook/internal/ledger/ledgertest"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

// Monday.
var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recorder is a Dispatcher that remembers booking ids per effect.
type recorder struct {
	mu        sync.Mutex
	confirmed []int64
	canceled  []int64
	completed []int64
}

func (r *recorder) BookingConfirmed(b *model.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, b.ID)
}

func (r *recorder) BookingCanceled(b *model.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, b.ID)
}

func (r *recorder) BookingCompleted(b *model.Booking, _ *model.Payout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, b.ID)
}

func (r *recorder) Confirmed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.confirmed...)
}

func (r *recorder) Canceled() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.canceled...)
}

type env struct {
	ctx        context.Context
	store      *ledgertest.Store
	gw         *gatewaytest.Fake
	clock      *clock
	effects    *recorder
	policy     Policy
	slots      *SlotService
	bookings   *BookingService
	subs       *SubscriptionService
	reconciler *Reconciler
	sweeper    *Sweeper

	host    model.Principal
	learner model.Principal
	other   model.Principal
}

func newEnv(t *testing.T) *env {
	t.Helper()

	c := &clock{t: baseTime}
	store := ledgertest.New()
	store.Now = c.Now
	gw := gatewaytest.New()
	effects := &recorder{}
	logger := zap.NewNop()

	policy := DefaultPolicy()
	policy.Now = c.Now

	slots := NewSlotService(store, gw, policy, logger)
	bookings := NewBookingService(store, slots, gw, effects, policy, logger)
	subs := NewSubscriptionService(store, gw, effects, policy, logger)

	host := store.AddUser(model.User{Email: "host@example.com", FullName: "Asha Host", Role: model.RoleHost, Timezone: "UTC"})
	learner := store.AddUser(model.User{Email: "learner@example.com", FullName: "Ravi Learner", Role: model.RoleLearner, Timezone: "UTC"})
	other := store.AddUser(model.User{Email: "other@example.com", FullName: "Meera Other", Role: model.RoleLearner, Timezone: "UTC"})

	return &env{
		ctx:        context.Background(),
		store:      store,
		gw:         gw,
		clock:      c,
		effects:    effects,
		policy:     policy,
		slots:      slots,
		bookings:   bookings,
		subs:       subs,
		reconciler: NewReconciler(store, gw, bookings, effects, policy, logger),
		sweeper:    NewSweeper(store, bookings, subs, effects, policy, logger),
		host:       model.Principal{ID: host.ID, Role: model.RoleHost},
		learner:    model.Principal{ID: learner.ID, Role: model.RoleLearner},
		other:      model.Principal{ID: other.ID, Role: model.RoleLearner},
	}
}

// adHocSlot seeds an AVAILABLE ONE_TIME slot of the host starting after the given offset from now.
func (e *env) adHocSlot(after time.Duration, price int64) model.Slot {
	start := e.clock.Now().Add(after)
	return e.store.AddSlot(model.Slot{
		HostID:          e.host.ID,
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		DurationMinutes: 60,
		Price:           price,
		Mode:            model.SlotModeOneTime,
		Status:          model.SlotStatusAvailable,
	})
}

// weeklyRule seeds an active Monday 18:00 UTC rule.
func (e *env) weeklyRule(mode model.SlotMode) model.AvailabilityRule {
	return e.store.AddRule(model.AvailabilityRule{
		HostID:          e.host.ID,
		Weekday:         int(time.Monday),
		StartHour:       18,
		DurationMinutes: 60,
		Price:           1200,
		Mode:            mode,
		Timezone:        "UTC",
		IsActive:        true,
	})
}

func (e *env) checkout(t *testing.T, slotID int64) *Checkout {
	t.Helper()
	co, err := e.bookings.Create(e.ctx, e.learner, slotID)
	require.NoError(t, err)
	return co
}

// pay confirms the checkout as the client would after a successful payment.
func (e *env) pay(t *testing.T, co *Checkout, paymentID string) *model.Booking {
	t.Helper()
	sig := gatewaytest.CheckoutSignature(co.OrderID, paymentID)
	b, err := e.bookings.ConfirmPayment(e.ctx, e.learner, co.Booking.ID, co.OrderID, paymentID, sig)
	require.NoError(t, err)
	return b
}

func (e *env) deliver(raw []byte) error {
	return e.reconciler.HandleProviderEvent(e.ctx, raw, gatewaytest.WebhookSignature(raw))
}

func (e *env) booking(t *testing.T, id int64) model.Booking {
	t.Helper()
	b, ok := e.store.Booking(id)
	require.True(t, ok, "booking %d", id)
	return b
}

func (e *env) slot(t *testing.T, id int64) model.Slot {
	t.Helper()
	s, ok := e.store.Slot(id)
	require.True(t, ok, "slot %d", id)
	return s
}

func (e *env) paymentOf(t *testing.T, bookingID int64) model.Payment {
	t.Helper()
	var found *model.Payment
	for _, p := range e.store.Payments() {
		if p.BookingID != nil && *p.BookingID == bookingID {
			found = &p
		}
	}
	require.NotNil(t, found, "payment of booking %d", bookingID)
	return *found
}

func (e *env) ruleSlots(ruleID int64) []model.Slot {
	var out []model.Slot
	for _, s := range e.store.Slots() {
		if s.RuleID != nil && *s.RuleID == ruleID {
			out = append(out, s)
		}
	}
	return out
}

func paymentEvent(t *testing.T, event, paymentID, orderID string, amount int64) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"event":      event,
		"created_at": baseTime.Unix(),
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": gateway.PaymentEntity{
					ID:       paymentID,
					OrderID:  orderID,
					Amount:   amount,
					Currency: "INR",
					Method:   "upi",
				},
			},
		},
	})
	require.NoError(t, err)
	return raw
}

func subscriptionEvent(t *testing.T, event, subscriptionID, paymentID string, amount int64) []byte {
	t.Helper()
	payload := map[string]any{
		"subscription": map[string]any{
			"entity": gateway.SubscriptionEntity{ID: subscriptionID, Status: "active"},
		},
	}
	if paymentID != "" {
		payload["payment"] = map[string]any{
			"entity": gateway.PaymentEntity{ID: paymentID, Amount: amount, Currency: "INR", Method: "card"},
		}
	}
	raw, err := json.Marshal(map[string]any{
		"event":      event,
		"created_at": baseTime.Unix(),
		"payload":    payload,
	})
	require.NoError(t, err)
	return raw
}
