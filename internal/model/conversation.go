package model

import "time"

// Conversation is the contact thread between a host and a learner. One per pair.
type Conversation struct {
	ID            int64     `json:"id"`
	HostID        int64     `json:"host_id"`
	LearnerID     int64     `json:"learner_id"`
	LastBookingID *int64    `json:"last_booking_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
