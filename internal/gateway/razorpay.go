package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Razorpay is the Gateway backed by the Razorpay REST API.
type Razorpay struct {
	client        *razorpay.Client
	keyID         string
	keySecret     string
	webhookSecret string
	logger        *zap.Logger
	backoff       func() retry.Backoff
}

func NewRazorpay(keyID, keySecret, webhookSecret string, logger *zap.Logger) *Razorpay {
	return &Razorpay{
		client:        razorpay.NewClient(keyID, keySecret),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		logger:        logger,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
		},
	}
}

func (g *Razorpay) KeyID() string {
	return g.keyID
}

// do retries transient failures. Client errors (4xx) are returned immediately.
func (g *Razorpay) do(ctx context.Context, op string, fn func() error) error {
	return retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}
		if isClientError(err) {
			return err
		}
		g.logger.Warn("Gateway call failed, retrying", zap.String("op", op), zap.Error(err))
		return retry.RetryableError(err)
	})
}

func isClientError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "bad_request") ||
		strings.Contains(msg, "bad request") ||
		strings.Contains(msg, "already")
}

func isAlreadyCaptured(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already been captured")
}

func (g *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	data := map[string]interface{}{
		"amount":          ToMinor(req.Amount),
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}

	var body map[string]interface{}
	err := g.do(ctx, "order.create", func() error {
		var err error
		body, err = g.client.Order.Create(data, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("create order: response without id")
	}
	return &Order{ID: id, Amount: ToMinor(req.Amount), Currency: req.Currency}, nil
}

func (g *Razorpay) CapturePayment(ctx context.Context, paymentID string, amount int64, currency string) error {
	data := map[string]interface{}{"currency": currency}

	err := g.do(ctx, "payment.capture", func() error {
		_, err := g.client.Payment.Capture(paymentID, int(ToMinor(amount)), data, nil)
		return err
	})
	if err != nil {
		if isAlreadyCaptured(err) {
			return ErrAlreadyCaptured
		}
		return fmt.Errorf("capture payment %s: %w", paymentID, err)
	}
	return nil
}

func (g *Razorpay) CreatePlan(ctx context.Context, req PlanRequest) (string, error) {
	data := map[string]interface{}{
		"period":   req.Period,
		"interval": req.Interval,
		"item": map[string]interface{}{
			"name":     req.Name,
			"amount":   ToMinor(req.Amount),
			"currency": req.Currency,
		},
	}

	var body map[string]interface{}
	err := g.do(ctx, "plan.create", func() error {
		var err error
		body, err = g.client.Plan.Create(data, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create plan: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return "", fmt.Errorf("create plan: response without id")
	}
	return id, nil
}

func (g *Razorpay) CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	data := map[string]interface{}{
		"plan_id":         req.PlanID,
		"total_count":     req.TotalCount,
		"customer_notify": 1,
	}
	if req.StartAt != nil {
		data["start_at"] = req.StartAt.Unix()
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}

	var body map[string]interface{}
	err := g.do(ctx, "subscription.create", func() error {
		var err error
		body, err = g.client.Subscription.Create(data, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create subscription: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return "", fmt.Errorf("create subscription: response without id")
	}
	return id, nil
}

func (g *Razorpay) PauseSubscription(ctx context.Context, id string) error {
	err := g.do(ctx, "subscription.pause", func() error {
		_, err := g.client.Subscription.Pause(id, map[string]interface{}{"pause_at": "now"}, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("pause subscription %s: %w", id, err)
	}
	return nil
}

func (g *Razorpay) ResumeSubscription(ctx context.Context, id string) error {
	err := g.do(ctx, "subscription.resume", func() error {
		_, err := g.client.Subscription.Resume(id, map[string]interface{}{"resume_at": "now"}, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("resume subscription %s: %w", id, err)
	}
	return nil
}

func (g *Razorpay) CancelSubscription(ctx context.Context, id string) error {
	err := g.do(ctx, "subscription.cancel", func() error {
		_, err := g.client.Subscription.Cancel(id, map[string]interface{}{"cancel_at_cycle_end": 0}, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("cancel subscription %s: %w", id, err)
	}
	return nil
}

func (g *Razorpay) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	return verify(g.keySecret, CheckoutPayload(orderID, paymentID), signature)
}

func (g *Razorpay) VerifyWebhookSignature(body []byte, signature string) bool {
	return verify(g.webhookSecret, body, signature)
}
