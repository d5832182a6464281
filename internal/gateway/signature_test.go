package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRazorpay_VerifyWebhookSignature(t *testing.T) {
	g := NewRazorpay("key", "secret", "whsec", zap.NewNop())
	body := []byte(`{"event":"payment.captured"}`)

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{name: "GivenMatchingSignature_ThenAccepted", signature: Sign("whsec", body), want: true},
		{name: "GivenKeySecretSignature_ThenRejected", signature: Sign("secret", body), want: false},
		{name: "GivenEmptySignature_ThenRejected", signature: "", want: false},
		{name: "GivenGarbage_ThenRejected", signature: "deadbeef", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.VerifyWebhookSignature(body, tt.signature))
		})
	}
}

func TestRazorpay_VerifyCheckoutSignature(t *testing.T) {
	g := NewRazorpay("key", "secret", "whsec", zap.NewNop())
	sig := Sign("secret", []byte("order_1|pay_1"))

	assert.True(t, g.VerifyCheckoutSignature("order_1", "pay_1", sig))
	assert.False(t, g.VerifyCheckoutSignature("order_2", "pay_1", sig))
}

func TestVerify_EmptySecretNeverMatches(t *testing.T) {
	assert.False(t, verify("", []byte("x"), Sign("", []byte("x"))))
}

func TestParseEvent_SubscriptionCharged(t *testing.T) {
	raw := []byte(`{
		"entity": "event",
		"event": "subscription.charged",
		"created_at": 1700000000,
		"payload": {
			"payment": {"entity": {"id": "pay_1", "order_id": "order_1", "amount": 120000, "currency": "INR", "status": "captured", "method": "upi"}},
			"subscription": {"entity": {"id": "sub_1", "status": "active", "charge_at": 1700600000, "end_at": null}}
		}
	}`)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionCharged, ev.Type)
	require.NotNil(t, ev.Payment)
	assert.Equal(t, "pay_1", ev.Payment.ID)
	assert.Equal(t, int64(1200), FromMinor(ev.Payment.Amount))
	require.NotNil(t, ev.Subscription)
	assert.Equal(t, "sub_1", ev.Subscription.ID)
	require.NotNil(t, Unix(ev.Subscription.ChargeAt))
	assert.Nil(t, Unix(ev.Subscription.EndAt))
}

func TestParseEvent_Invalid(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}
