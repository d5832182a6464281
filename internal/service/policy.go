package service

import (
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/Freeeeeet/mentorbook/internal/service")

// ProviderRazorpay tags payments and provider events.
const ProviderRazorpay = "razorpay"

// Policy holds the business knobs shared by the services.
type Policy struct {
	Currency           string
	HoldWindow         time.Duration // how long a PENDING booking waits for payment
	CaptureOffset      time.Duration // authorized payments are captured this long before the session
	CancelCutoff       time.Duration // no cancellation closer than this to the start
	CommissionRate     float64
	PlatformFee        int64
	ExpansionDays      int
	SubscriptionCycles int
	Now                func() time.Time
}

func DefaultPolicy() Policy {
	return Policy{
		Currency:           "INR",
		HoldWindow:         30 * time.Minute,
		CaptureOffset:      24 * time.Hour,
		CancelCutoff:       24 * time.Hour,
		CommissionRate:     0.15,
		PlatformFee:        0,
		ExpansionDays:      28,
		SubscriptionCycles: 52,
		Now:                time.Now,
	}
}

func (p Policy) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

func ptr[T any](v T) *T {
	return &v
}
