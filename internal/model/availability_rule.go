package model

import "time"

// AvailabilityRule is a weekly template from which concrete slots are expanded.
type AvailabilityRule struct {
	ID              int64     `json:"id"`
	HostID          int64     `json:"host_id"`
	Weekday         int       `json:"weekday"`      // 0 = Sunday, 6 = Saturday
	StartHour       int       `json:"start_hour"`   // 0-23
	StartMinute     int       `json:"start_minute"` // 0-59
	DurationMinutes int       `json:"duration_minutes"`
	Price           int64     `json:"price"`
	Mode            SlotMode  `json:"mode"`
	Timezone        string    `json:"timezone"` // IANA name, e.g. Asia/Kolkata
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Location resolves the rule's timezone, falling back to UTC for unknown names.
func (r *AvailabilityRule) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
