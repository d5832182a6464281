package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

func TestNextOccurrence(t *testing.T) {
	monday18 := &model.AvailabilityRule{Weekday: int(time.Monday), StartHour: 18, Timezone: "UTC"}
	kolkata := &model.AvailabilityRule{Weekday: int(time.Monday), StartHour: 10, Timezone: "Asia/Kolkata"}

	tests := []struct {
		name  string
		rule  *model.AvailabilityRule
		after time.Time
		want  time.Time
	}{
		{
			name:  "GivenSameDayBeforeStart_ThenToday",
			rule:  monday18,
			after: baseTime,
			want:  time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		},
		{
			name:  "GivenExactlyAtStart_ThenNextWeek",
			rule:  monday18,
			after: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC),
		},
		{
			name:  "GivenSunday_ThenNextDay",
			rule:  monday18,
			after: time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		},
		{
			// 09:00 UTC is 14:30 in Kolkata, past the 10:00 start.
			name:  "GivenRuleTimezone_ThenWallClockInThatZone",
			rule:  kolkata,
			after: baseTime,
			want:  time.Date(2026, 3, 9, 4, 30, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextOccurrence(tt.rule, tt.after)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestOccurrencesBetween_FourWeeks(t *testing.T) {
	rule := &model.AvailabilityRule{Weekday: int(time.Monday), StartHour: 18, Timezone: "UTC"}

	got := occurrencesBetween(rule, baseTime, baseTime.AddDate(0, 0, 28))

	require.Len(t, got, 4)
	for i, start := range got {
		want := time.Date(2026, 3, 2+7*i, 18, 0, 0, 0, time.UTC)
		assert.True(t, want.Equal(start), "occurrence %d: want %s, got %s", i, want, start)
	}
}

func TestOccurrencesBetween_IncludesBothBounds(t *testing.T) {
	rule := &model.AvailabilityRule{Weekday: int(time.Monday), StartHour: 18, Timezone: "UTC"}
	from := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	got := occurrencesBetween(rule, from, from.AddDate(0, 0, 28))

	require.Len(t, got, 5)
	assert.True(t, from.Equal(got[0]))
	assert.True(t, from.AddDate(0, 0, 28).Equal(got[4]))
}

func TestOccurrencesBetween_KeepsWallClockAcrossDST(t *testing.T) {
	rule := &model.AvailabilityRule{Weekday: int(time.Monday), StartHour: 9, Timezone: "America/New_York"}
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got := occurrencesBetween(rule, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	require.Len(t, got, 2)
	assert.Equal(t, 14, got[0].Hour(), "EST offset")
	assert.Equal(t, 13, got[1].Hour(), "EDT offset")
	for _, start := range got {
		assert.Equal(t, 9, start.In(ny).Hour())
	}
}

func TestSlotFromRule(t *testing.T) {
	rule := &model.AvailabilityRule{ID: 7, HostID: 3, DurationMinutes: 45, Price: 900, Mode: model.SlotModeRecurring}
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	slot := slotFromRule(rule, start)

	require.NotNil(t, slot.RuleID)
	assert.Equal(t, int64(7), *slot.RuleID)
	assert.Equal(t, int64(3), slot.HostID)
	assert.Equal(t, start.Add(45*time.Minute), slot.EndTime)
	assert.Equal(t, int64(900), slot.Price)
	assert.Equal(t, model.SlotModeRecurring, slot.Mode)
	assert.Equal(t, model.SlotStatusAvailable, slot.Status)
}
