package model

import "time"

// ProviderEvent is an audit record of a verified gateway webhook delivery.
type ProviderEvent struct {
	ID         int64     `json:"id"`
	Provider   string    `json:"provider"`
	EventKey   string    `json:"event_key"`
	EventType  string    `json:"event_type"`
	Payload    []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}
