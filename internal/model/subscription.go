package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusCreated  SubscriptionStatus = "CREATED"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused   SubscriptionStatus = "PAUSED"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

type Subscription struct {
	ID                     int64              `json:"id"`
	HostID                 int64              `json:"host_id"`
	LearnerID              int64              `json:"learner_id"`
	RuleID                 int64              `json:"rule_id"`
	CurrentBookingID       *int64             `json:"current_booking_id,omitempty"`
	ProviderPlanID         *string            `json:"provider_plan_id,omitempty"`
	ProviderSubscriptionID *string            `json:"provider_subscription_id,omitempty"`
	Price                  int64              `json:"price"`
	Status                 SubscriptionStatus `json:"status"`
	StartAt                *time.Time         `json:"start_at,omitempty"`
	EndAt                  *time.Time         `json:"end_at,omitempty"`
	NextChargeAt           *time.Time         `json:"next_charge_at,omitempty"`
	PauseUntil             *time.Time         `json:"pause_until,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// Live reports whether the subscription still occupies its rule.
func (s *Subscription) Live() bool {
	return s.Status != SubscriptionStatusCanceled
}

func (s *Subscription) IsParty(userID int64) bool {
	return s.HostID == userID || s.LearnerID == userID
}
