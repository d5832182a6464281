package service

import (
	"time"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

func occurrenceOn(rule *model.AvailabilityRule, day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), rule.StartHour, rule.StartMinute, 0, 0, day.Location())
}

// nextOccurrence returns the first start of the rule strictly after the given instant.
// Wall-clock times are evaluated in the rule's timezone.
func nextOccurrence(rule *model.AvailabilityRule, after time.Time) time.Time {
	loc := rule.Location()
	local := after.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	for i := 0; i < 14; i++ {
		d := day.AddDate(0, 0, i)
		if int(d.Weekday()) != rule.Weekday {
			continue
		}
		start := occurrenceOn(rule, d)
		if start.After(after) {
			return start.UTC()
		}
	}
	// Weekday out of range; validated on input, never reached for stored rules.
	return occurrenceOn(rule, day.AddDate(0, 0, 7)).UTC()
}

// occurrencesBetween lists every start of the rule in [from, to].
func occurrencesBetween(rule *model.AvailabilityRule, from, to time.Time) []time.Time {
	loc := rule.Location()
	local := from.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var starts []time.Time
	for ; !day.After(to); day = day.AddDate(0, 0, 1) {
		if int(day.Weekday()) != rule.Weekday {
			continue
		}
		start := occurrenceOn(rule, day)
		if start.Before(from) || start.After(to) {
			continue
		}
		starts = append(starts, start.UTC())
	}
	return starts
}

func slotFromRule(rule *model.AvailabilityRule, start time.Time) *model.Slot {
	ruleID := rule.ID
	return &model.Slot{
		HostID:          rule.HostID,
		RuleID:          &ruleID,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(rule.DurationMinutes) * time.Minute),
		DurationMinutes: rule.DurationMinutes,
		Price:           rule.Price,
		Mode:            rule.Mode,
		Status:          model.SlotStatusAvailable,
	}
}
