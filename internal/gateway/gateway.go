// Package gateway talks to the card/UPI payment provider.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyCaptured is returned by CapturePayment when the provider reports an earlier capture.
var ErrAlreadyCaptured = errors.New("gateway: payment already captured")

// Amounts crossing this interface are in major units (rupees); adapters convert.
type Gateway interface {
	// KeyID is the public key handed to the checkout widget.
	KeyID() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CapturePayment(ctx context.Context, providerPaymentID string, amount int64, currency string) error
	CreatePlan(ctx context.Context, req PlanRequest) (string, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error)
	PauseSubscription(ctx context.Context, providerSubscriptionID string) error
	ResumeSubscription(ctx context.Context, providerSubscriptionID string) error
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
	VerifyCheckoutSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Order struct {
	ID       string
	Amount   int64
	Currency string
}

type PlanRequest struct {
	Name     string
	Period   string // daily, weekly, monthly, yearly
	Interval int
	Amount   int64
	Currency string
}

type SubscriptionRequest struct {
	PlanID     string
	TotalCount int
	StartAt    *time.Time // first charge; nil charges immediately
	Notes      map[string]string
}

// ToMinor converts a major-unit amount to the provider's minor unit.
func ToMinor(amount int64) int64 {
	return amount * 100
}

// FromMinor converts provider minor units back to major units.
func FromMinor(amount int64) int64 {
	return amount / 100
}
