package model

import "time"

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "OPEN"
	DisputeStatusResolved DisputeStatus = "RESOLVED"
)

type Dispute struct {
	ID        int64         `json:"id"`
	BookingID int64         `json:"booking_id"`
	RaisedBy  int64         `json:"raised_by"`
	Reason    string        `json:"reason"`
	Status    DisputeStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
