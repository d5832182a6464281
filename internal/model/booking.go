package model

import (
	"math"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCanceled  BookingStatus = "CANCELED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusDisputed  BookingStatus = "DISPUTED"
)

type Booking struct {
	ID             int64         `json:"id"`
	HostID         int64         `json:"host_id"`
	LearnerID      int64         `json:"learner_id"`
	SlotID         int64         `json:"slot_id"`
	SubscriptionID *int64        `json:"subscription_id,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Price          int64         `json:"price"`
	PlatformFee    int64         `json:"platform_fee"`
	CommissionRate float64       `json:"commission_rate"`
	Status         BookingStatus `json:"status"`
	MeetingLink    *string       `json:"meeting_link,omitempty"`
	CancelReason   *string       `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsParty reports whether the user is the host or the learner of the booking.
func (b *Booking) IsParty(userID int64) bool {
	return b.HostID == userID || b.LearnerID == userID
}

// Open reports whether the booking can still be disputed.
func (b *Booking) Open() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// PayoutAmount is the host's share: price minus the rounded commission minus the flat fee.
func (b *Booking) PayoutAmount() int64 {
	commission := int64(math.Round(float64(b.Price) * b.CommissionRate))
	return b.Price - commission - b.PlatformFee
}
