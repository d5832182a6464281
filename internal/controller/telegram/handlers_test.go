package telegram

import (
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

func TestStartToken(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "/start abc.def.ghi", want: "abc.def.ghi"},
		{text: "/start   abc.def.ghi  ", want: "abc.def.ghi"},
		{text: "/start", want: ""},
		{text: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, startToken(tt.text), tt.text)
	}
}

func TestParseCancelData(t *testing.T) {
	tests := []struct {
		data   string
		wantID int64
		wantOK bool
	}{
		{data: "cancel:42", wantID: 42, wantOK: true},
		{data: "cancel:", wantOK: false},
		{data: "cancel:-3", wantOK: false},
		{data: "cancel:abc", wantOK: false},
		{data: "pause:42", wantOK: false},
	}
	for _, tt := range tests {
		id, ok := parseCancelData(tt.data)
		assert.Equal(t, tt.wantOK, ok, tt.data)
		assert.Equal(t, tt.wantID, id, tt.data)
	}
}

func TestUserLocation(t *testing.T) {
	assert.Equal(t, time.UTC, userLocation(&model.User{}))
	assert.Equal(t, time.UTC, userLocation(&model.User{Timezone: "Mars/Olympus"}))
	assert.Equal(t, "Asia/Kolkata", userLocation(&model.User{Timezone: "Asia/Kolkata"}).String())
}

func TestFormatBooking(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	start := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	b := &model.Booking{
		ID:        7,
		HostID:    1,
		LearnerID: 2,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    model.BookingStatusConfirmed,
		Price:     1200,
	}

	t.Run("GivenHostViewer_ThenLocalTimes", func(t *testing.T) {
		got := formatBooking(b, 1, kolkata)

		assert.Equal(t, "<b>Booking #7</b> (host)\nMon 02 Mar 18:00-19:00\nStatus: CONFIRMED\nPrice: ₹1200", got)
	})

	t.Run("GivenLearnerViewer_ThenLearnerRole", func(t *testing.T) {
		got := formatBooking(b, 2, time.UTC)

		assert.Contains(t, got, "(learner)")
		assert.Contains(t, got, "12:30-13:30")
	})
}

func TestCancelKeyboard(t *testing.T) {
	t.Run("GivenOpenBooking_ThenButton", func(t *testing.T) {
		markup := cancelKeyboard(&model.Booking{ID: 9, Status: model.BookingStatusPending})

		kb, ok := markup.(*models.InlineKeyboardMarkup)
		require.True(t, ok)
		require.Len(t, kb.InlineKeyboard, 1)
		require.Len(t, kb.InlineKeyboard[0], 1)
		assert.Equal(t, "cancel:9", kb.InlineKeyboard[0][0].CallbackData)

		id, ok := parseCancelData(kb.InlineKeyboard[0][0].CallbackData)
		assert.True(t, ok)
		assert.Equal(t, int64(9), id)
	})

	t.Run("GivenClosedBooking_ThenNoButton", func(t *testing.T) {
		for _, status := range []model.BookingStatus{model.BookingStatusCanceled, model.BookingStatusCompleted, model.BookingStatusDisputed} {
			assert.Nil(t, cancelKeyboard(&model.Booking{ID: 9, Status: status}), status)
		}
	})
}
