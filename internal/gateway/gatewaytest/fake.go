// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
)

const (
	KeyID         = "rzp_test_key"
	KeySecret     = "test_secret"
	WebhookSecret = "whsec_test"
)

// Fake records calls and signs with fixed test secrets. Set the *Err fields to inject failures.
type Fake struct {
	mu sync.Mutex

	Orders        []gateway.OrderRequest
	Captures      []string
	Plans         []gateway.PlanRequest
	Subscriptions []gateway.SubscriptionRequest
	Paused        []string
	Resumed       []string
	Canceled      []string
	captured      map[string]bool

	OrderErr        error
	CaptureErr      error
	SubscriptionErr error
	PauseErr        error
	ResumeErr       error
	CancelErr       error
}

func New() *Fake {
	return &Fake{captured: map[string]bool{}}
}

func (f *Fake) KeyID() string { return KeyID }

func (f *Fake) CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OrderErr != nil {
		return nil, f.OrderErr
	}
	f.Orders = append(f.Orders, req)
	return &gateway.Order{
		ID:       fmt.Sprintf("order_%d", len(f.Orders)),
		Amount:   gateway.ToMinor(req.Amount),
		Currency: req.Currency,
	}, nil
}

// CapturePayment reports ErrAlreadyCaptured on a repeat, like the live API.
func (f *Fake) CapturePayment(ctx context.Context, paymentID string, amount int64, currency string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CaptureErr != nil {
		return f.CaptureErr
	}
	f.Captures = append(f.Captures, paymentID)
	if f.captured[paymentID] {
		return gateway.ErrAlreadyCaptured
	}
	f.captured[paymentID] = true
	return nil
}

// MarkCaptured simulates a capture made outside this process.
func (f *Fake) MarkCaptured(paymentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured[paymentID] = true
}

func (f *Fake) CreatePlan(ctx context.Context, req gateway.PlanRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Plans = append(f.Plans, req)
	return fmt.Sprintf("plan_%d", len(f.Plans)), nil
}

func (f *Fake) CreateSubscription(ctx context.Context, req gateway.SubscriptionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscriptionErr != nil {
		return "", f.SubscriptionErr
	}
	f.Subscriptions = append(f.Subscriptions, req)
	return fmt.Sprintf("sub_%d", len(f.Subscriptions)), nil
}

func (f *Fake) PauseSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PauseErr != nil {
		return f.PauseErr
	}
	f.Paused = append(f.Paused, id)
	return nil
}

func (f *Fake) ResumeSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ResumeErr != nil {
		return f.ResumeErr
	}
	f.Resumed = append(f.Resumed, id)
	return nil
}

func (f *Fake) CancelSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.Canceled = append(f.Canceled, id)
	return nil
}

func (f *Fake) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	return signature != "" && signature == CheckoutSignature(orderID, paymentID)
}

func (f *Fake) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature != "" && signature == WebhookSignature(body)
}

func (f *Fake) CaptureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Captures)
}

func CheckoutSignature(orderID, paymentID string) string {
	return gateway.Sign(KeySecret, gateway.CheckoutPayload(orderID, paymentID))
}

func WebhookSignature(body []byte) string {
	return gateway.Sign(WebhookSecret, body)
}
