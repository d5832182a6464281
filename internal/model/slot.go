package model

import "time"

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "AVAILABLE"
	SlotStatusReserved  SlotStatus = "RESERVED" // held by a PENDING booking
	SlotStatusBooked    SlotStatus = "BOOKED"
	SlotStatusBlocked   SlotStatus = "BLOCKED" // closed by the host
)

// SlotMode decides how a slot is sold: once via checkout or as part of a subscription.
type SlotMode string

const (
	SlotModeOneTime   SlotMode = "ONE_TIME"
	SlotModeRecurring SlotMode = "RECURRING"
)

func (m SlotMode) Valid() bool {
	return m == SlotModeOneTime || m == SlotModeRecurring
}

type Slot struct {
	ID              int64      `json:"id"`
	HostID          int64      `json:"host_id"`
	RuleID          *int64     `json:"rule_id,omitempty"` // nil for ad hoc slots
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Price           int64      `json:"price"`
	Mode            SlotMode   `json:"mode"`
	Status          SlotStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Locked reports whether the slot is held or sold.
func (s *Slot) Locked() bool {
	return s.Status == SlotStatusReserved || s.Status == SlotStatusBooked
}
