package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBooking_PayoutAmount(t *testing.T) {
	tests := []struct {
		name    string
		booking Booking
		want    int64
	}{
		{name: "GivenDefaultCommission", booking: Booking{Price: 1200, CommissionRate: 0.15}, want: 1020},
		{name: "GivenFlatFee", booking: Booking{Price: 1200, CommissionRate: 0.15, PlatformFee: 20}, want: 1000},
		{name: "GivenFractionalCommission_ThenRounded", booking: Booking{Price: 999, CommissionRate: 0.15}, want: 849},
		{name: "GivenFreeSession", booking: Booking{Price: 0, CommissionRate: 0.15}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.booking.PayoutAmount())
		})
	}
}

func TestPayment_CanMoveTo(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{PaymentStatusCreated, PaymentStatusAuthorized, true},
		{PaymentStatusCreated, PaymentStatusCaptured, true},
		{PaymentStatusCreated, PaymentStatusFailed, true},
		{PaymentStatusAuthorized, PaymentStatusCaptured, true},
		{PaymentStatusAuthorized, PaymentStatusFailed, true},
		{PaymentStatusAuthorized, PaymentStatusCreated, false},
		{PaymentStatusCaptured, PaymentStatusFailed, false},
		{PaymentStatusFailed, PaymentStatusCaptured, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			p := Payment{Status: tt.from}
			assert.Equal(t, tt.want, p.CanMoveTo(tt.to))
		})
	}
}

func TestAppError_MatchesOnKind(t *testing.T) {
	err := fmt.Errorf("reserve: %w", Errorf(ErrSlotUnavailable, "slot %d is taken", 7))

	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	appErr, ok := AsAppError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "slot 7 is taken", appErr.Message)

	cause := errors.New("connection reset")
	wrapped := Wrap(ErrGatewayUnavailable, cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, ErrGatewayUnavailable)
}

func TestSlot_Locked(t *testing.T) {
	for status, want := range map[SlotStatus]bool{
		SlotStatusAvailable: false,
		SlotStatusReserved:  true,
		SlotStatusBooked:    true,
		SlotStatusBlocked:   false,
	} {
		s := Slot{Status: status}
		assert.Equal(t, want, s.Locked(), status)
	}
}
