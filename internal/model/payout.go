package model

import "time"

type PayoutStatus string

const (
	PayoutStatusScheduled PayoutStatus = "SCHEDULED"
	PayoutStatusPaid      PayoutStatus = "PAID"
)

type Payout struct {
	ID        int64        `json:"id"`
	BookingID int64        `json:"booking_id"`
	HostID    int64        `json:"host_id"`
	Amount    int64        `json:"amount"`
	Currency  string       `json:"currency"`
	Status    PayoutStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}
