package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

func TestHostMessage(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	reason := "<sick>"

	tests := []struct {
		name    string
		booking model.Booking
		want    []string
	}{
		{
			name:    "GivenConfirmed_ThenShowsPrice",
			booking: model.Booking{ID: 7, Price: 1200, Status: model.BookingStatusConfirmed, StartTime: start},
			want:    []string{"confirmed", "₹1200", "#7", "Mon, 02 Mar 10:30"},
		},
		{
			name:    "GivenCanceledWithReason_ThenReasonEscaped",
			booking: model.Booking{ID: 8, Status: model.BookingStatusCanceled, StartTime: start, CancelReason: &reason},
			want:    []string{"canceled", "&lt;sick&gt;"},
		},
		{
			name:    "GivenCompleted_ThenShowsPayout",
			booking: model.Booking{ID: 9, Price: 1200, CommissionRate: 0.15, Status: model.BookingStatusCompleted, StartTime: start},
			want:    []string{"completed", "₹1020"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := HostMessage(&tt.booking, time.UTC)
			for _, w := range tt.want {
				assert.Contains(t, msg, w)
			}
		})
	}
}
