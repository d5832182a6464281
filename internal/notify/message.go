package notify

import (
	"fmt"
	"html"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

// BookingEvent is the AMQP payload for booking lifecycle changes.
type BookingEvent struct {
	BookingID      int64               `json:"booking_id"`
	HostID         int64               `json:"host_id"`
	LearnerID      int64               `json:"learner_id"`
	SubscriptionID *int64              `json:"subscription_id,omitempty"`
	Status         model.BookingStatus `json:"status"`
	StartTime      time.Time           `json:"start_time"`
	EndTime        time.Time           `json:"end_time"`
	Price          int64               `json:"price"`
	PayoutAmount   *int64              `json:"payout_amount,omitempty"`
	CancelReason   *string             `json:"cancel_reason,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func NewBookingEvent(b *model.Booking, at time.Time) BookingEvent {
	return BookingEvent{
		BookingID:      b.ID,
		HostID:         b.HostID,
		LearnerID:      b.LearnerID,
		SubscriptionID: b.SubscriptionID,
		Status:         b.Status,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Price:          b.Price,
		CancelReason:   b.CancelReason,
		OccurredAt:     at,
	}
}

// HostMessage renders the Telegram text for the host.
func HostMessage(b *model.Booking, loc *time.Location) string {
	when := b.StartTime.In(loc).Format("Mon, 02 Jan 15:04")
	switch b.Status {
	case model.BookingStatusConfirmed:
		return fmt.Sprintf("✅ <b>New session confirmed</b>\n%s · ₹%d\nBooking #%d", when, b.Price, b.ID)
	case model.BookingStatusCanceled:
		reason := ""
		if b.CancelReason != nil && *b.CancelReason != "" {
			reason = "\nReason: " + html.EscapeString(*b.CancelReason)
		}
		return fmt.Sprintf("❌ <b>Session canceled</b>\n%s\nBooking #%d%s", when, b.ID, reason)
	case model.BookingStatusCompleted:
		return fmt.Sprintf("🎓 <b>Session completed</b>\n%s\nPayout of ₹%d scheduled", when, b.PayoutAmount())
	default:
		return fmt.Sprintf("Booking #%d is now %s", b.ID, b.Status)
	}
}
