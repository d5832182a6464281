package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventPaymentAuthorized         = "payment.authorized"
	EventPaymentCaptured           = "payment.captured"
	EventPaymentFailed             = "payment.failed"
	EventSubscriptionAuthenticated = "subscription.authenticated"
	EventSubscriptionActivated     = "subscription.activated"
	EventSubscriptionCharged       = "subscription.charged"
	EventSubscriptionPaused        = "subscription.paused"
	EventSubscriptionResumed       = "subscription.resumed"
	EventSubscriptionCancelled     = "subscription.cancelled"
	EventSubscriptionCompleted     = "subscription.completed"
	EventSubscriptionPending       = "subscription.pending"
	EventSubscriptionHalted        = "subscription.halted"
)

// Event is a decoded webhook envelope.
type Event struct {
	Type         string
	CreatedAt    time.Time
	Payment      *PaymentEntity
	Subscription *SubscriptionEntity
}

type PaymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

type SubscriptionEntity struct {
	ID           string `json:"id"`
	PlanID       string `json:"plan_id"`
	Status       string `json:"status"`
	StartAt      *int64 `json:"start_at"`
	EndAt        *int64 `json:"end_at"`
	ChargeAt     *int64 `json:"charge_at"`
	CurrentStart *int64 `json:"current_start"`
	CurrentEnd   *int64 `json:"current_end"`
	PaidCount    int    `json:"paid_count"`
}

type envelope struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Subscription *struct {
			Entity SubscriptionEntity `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(raw []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode webhook: missing event type")
	}

	ev := &Event{Type: env.Event, CreatedAt: time.Unix(env.CreatedAt, 0).UTC()}
	if env.Payload.Payment != nil {
		p := env.Payload.Payment.Entity
		ev.Payment = &p
	}
	if env.Payload.Subscription != nil {
		s := env.Payload.Subscription.Entity
		ev.Subscription = &s
	}
	return ev, nil
}

// Unix converts an optional provider timestamp.
func Unix(ts *int64) *time.Time {
	if ts == nil || *ts == 0 {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}
