package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "CREATED"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured   PaymentStatus = "CAPTURED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// Payment amounts are kept in the same major unit as slot prices.
type Payment struct {
	ID                 int64         `json:"id"`
	BookingID          *int64        `json:"booking_id,omitempty"`
	SubscriptionID     *int64        `json:"subscription_id,omitempty"`
	Provider           string        `json:"provider"`
	ProviderOrderID    *string       `json:"provider_order_id,omitempty"`
	ProviderPaymentID  *string       `json:"provider_payment_id,omitempty"`
	Amount             int64         `json:"amount"`
	Currency           string        `json:"currency"`
	Status             PaymentStatus `json:"status"`
	Method             *string       `json:"method,omitempty"`
	HoldExpiresAt      *time.Time    `json:"hold_expires_at,omitempty"`
	ScheduledCaptureAt *time.Time    `json:"scheduled_capture_at,omitempty"`
	CapturedAt         *time.Time    `json:"captured_at,omitempty"`
	RawPayload         []byte        `json:"-"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

var paymentRank = map[PaymentStatus]int{
	PaymentStatusCreated:    0,
	PaymentStatusAuthorized: 1,
	PaymentStatusCaptured:   2,
	PaymentStatusFailed:     2,
}

// CanMoveTo reports whether next is a forward transition. CAPTURED and FAILED are final.
func (p *Payment) CanMoveTo(next PaymentStatus) bool {
	if p.Status == PaymentStatusCaptured || p.Status == PaymentStatusFailed {
		return false
	}
	return paymentRank[next] > paymentRank[p.Status]
}
