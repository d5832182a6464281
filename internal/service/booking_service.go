package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

// BookingService drives a booking from checkout to completion.
type BookingService struct {
	store      ledger.Store
	slots      *SlotService
	gateway    gateway.Gateway
	dispatcher Dispatcher
	policy     Policy
	logger     *zap.Logger
}

// NewBookingService wires the booking lifecycle to the ledger and the payment gateway.
func NewBookingService(
	store ledger.Store,
	slots *SlotService,
	gw gateway.Gateway,
	dispatcher Dispatcher,
	policy Policy,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		store:      store,
		slots:      slots,
		gateway:    gw,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
	}
}

// Checkout is what the client needs to open the payment widget.
type Checkout struct {
	Booking       *model.Booking `json:"booking"`
	OrderID       string         `json:"order_id"`
	Amount        int64          `json:"amount"` // minor units
	Currency      string         `json:"currency"`
	KeyID         string         `json:"key_id"`
	HoldExpiresAt time.Time      `json:"hold_expires_at"`
}

// Create reserves a ONE_TIME slot for the caller and opens checkout.
func (s *BookingService) Create(ctx context.Context, principal model.Principal, slotID int64) (*Checkout, error) {
	booking, payment, err := s.slots.ReserveOneTimeSlot(ctx, slotID, principal.ID)
	if err != nil {
		return nil, err
	}
	return &Checkout{
		Booking:       booking,
		OrderID:       *payment.ProviderOrderID,
		Amount:        gateway.ToMinor(payment.Amount),
		Currency:      payment.Currency,
		KeyID:         s.gateway.KeyID(),
		HoldExpiresAt: *payment.HoldExpiresAt,
	}, nil
}

func (s *BookingService) loadParty(ctx context.Context, principal model.Principal, bookingID int64) (*model.Booking, error) {
	booking, err := s.store.Read().Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, model.Errorf(model.ErrNotFound, "booking %d not found", bookingID)
	}
	if !booking.IsParty(principal.ID) && principal.Role != model.RoleAdmin {
		return nil, model.ErrForbidden
	}
	return booking, nil
}

func (s *BookingService) Get(ctx context.Context, principal model.Principal, bookingID int64) (*model.Booking, error) {
	return s.loadParty(ctx, principal, bookingID)
}

func (s *BookingService) List(ctx context.Context, principal model.Principal) ([]*model.Booking, error) {
	bookings, err := s.store.Read().Bookings().ListByUser(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// ConfirmPayment records a successful client-side checkout.
// Signature is HMAC-SHA256(orderID + "|" + paymentID) under the key secret.
func (s *BookingService) ConfirmPayment(ctx context.Context, principal model.Principal, bookingID int64, orderID, paymentID, signature string) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.confirm_payment")
	defer span.End()

	booking, err := s.loadParty(ctx, principal, bookingID)
	if err != nil {
		return nil, err
	}
	// only the paying learner completes checkout
	if booking.LearnerID != principal.ID {
		return nil, model.ErrForbidden
	}
	if !s.gateway.VerifyCheckoutSignature(orderID, paymentID, signature) {
		return nil, model.ErrInvalidSignature
	}

	now := s.policy.now()
	var confirmed *model.Booking
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		payment, err := tx.Payments().GetByBookingForUpdate(ctx, booking.ID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if payment == nil {
			return model.ErrPaymentMissing
		}
		if payment.ProviderOrderID == nil || *payment.ProviderOrderID != orderID {
			return model.ErrOrderMismatch
		}

		confirmed, err = markCapturedTx(ctx, tx, payment, paymentID, nil, now)
		if err != nil {
			return err
		}
		booking, err = tx.Bookings().GetByID(ctx, booking.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if confirmed != nil {
		s.logger.Info("Booking confirmed",
			zap.Int64("booking_id", confirmed.ID),
			zap.String("payment_id", paymentID),
		)
		s.dispatcher.BookingConfirmed(confirmed)
	}
	return booking, nil
}

// Cancel is allowed to either party until the cutoff, except for a paid ONE_TIME session.
func (s *BookingService) Cancel(ctx context.Context, principal model.Principal, bookingID int64, reason string) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "bookings.cancel")
	defer span.End()

	now := s.policy.now()
	var booking *model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		var err error
		booking, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		if booking == nil {
			return model.Errorf(model.ErrNotFound, "booking %d not found", bookingID)
		}
		if !booking.IsParty(principal.ID) {
			return model.ErrForbidden
		}
		if !booking.Open() {
			return model.Errorf(model.ErrCancelNotAllowed, "booking is %s", booking.Status)
		}

		slot, err := tx.Slots().GetByID(ctx, booking.SlotID)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		payment, err := tx.Payments().GetByBookingForUpdate(ctx, booking.ID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if slot != nil && slot.Mode == model.SlotModeOneTime &&
			payment != nil && payment.Status == model.PaymentStatusCaptured {
			return model.Errorf(model.ErrCancelNotAllowed, "paid one-time sessions cannot be canceled")
		}
		if booking.StartTime.Sub(now) < s.policy.CancelCutoff {
			return model.ErrCancelWindowPassed
		}

		if reason == "" {
			reason = "canceled by participant"
		}
		return releaseBookingTx(ctx, tx, booking, reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking canceled",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("user_id", principal.ID),
	)
	s.dispatcher.BookingCanceled(booking)
	return booking, nil
}

// Complete closes a CONFIRMED session and schedules the host payout.
func (s *BookingService) Complete(ctx context.Context, principal model.Principal, bookingID int64) (*model.Booking, *model.Payout, error) {
	ctx, span := tracer.Start(ctx, "bookings.complete")
	defer span.End()

	var booking *model.Booking
	var payout *model.Payout
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		var err error
		booking, err = tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		if booking == nil {
			return model.Errorf(model.ErrNotFound, "booking %d not found", bookingID)
		}
		if booking.HostID != principal.ID && principal.Role != model.RoleAdmin {
			return model.ErrForbidden
		}
		if booking.Status != model.BookingStatusConfirmed {
			return model.Errorf(model.ErrInvalidState, "booking is %s", booking.Status)
		}

		if err := tx.Bookings().UpdateStatus(ctx, booking.ID, model.BookingStatusCompleted, nil); err != nil {
			return err
		}
		booking.Status = model.BookingStatusCompleted

		payout = &model.Payout{
			BookingID: booking.ID,
			HostID:    booking.HostID,
			Amount:    booking.PayoutAmount(),
			Currency:  s.policy.Currency,
			Status:    model.PayoutStatusScheduled,
		}
		if err := tx.Payouts().Create(ctx, payout); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				return model.Errorf(model.ErrInvalidState, "payout already exists for booking %d", booking.ID)
			}
			return fmt.Errorf("create payout: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Booking completed",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("payout", payout.Amount),
	)
	s.dispatcher.BookingCompleted(booking, payout)
	return booking, payout, nil
}

// Dispute flags an open booking for review.
func (s *BookingService) Dispute(ctx context.Context, principal model.Principal, bookingID int64, reason string) (*model.Dispute, error) {
	if reason == "" {
		return nil, model.Errorf(model.ErrBadRequest, "reason is required")
	}

	var dispute *model.Dispute
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		booking, err := tx.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		if booking == nil {
			return model.Errorf(model.ErrNotFound, "booking %d not found", bookingID)
		}
		if !booking.IsParty(principal.ID) {
			return model.ErrForbidden
		}
		if !booking.Open() {
			return model.Errorf(model.ErrInvalidState, "booking is %s", booking.Status)
		}

		dispute = &model.Dispute{
			BookingID: booking.ID,
			RaisedBy:  principal.ID,
			Reason:    reason,
			Status:    model.DisputeStatusOpen,
		}
		if err := tx.Disputes().Create(ctx, dispute); err != nil {
			return err
		}
		return tx.Bookings().UpdateStatus(ctx, booking.ID, model.BookingStatusDisputed, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Booking disputed",
		zap.Int64("booking_id", bookingID),
		zap.Int64("raised_by", principal.ID),
	)
	return dispute, nil
}

// CapturePayment captures an AUTHORIZED payment at the gateway and confirms its booking.
// A capture the provider already performed counts as success.
func (s *BookingService) CapturePayment(ctx context.Context, paymentID int64) error {
	ctx, span := tracer.Start(ctx, "bookings.capture_payment")
	defer span.End()

	payment, err := s.store.Read().Payments().GetByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("get payment: %w", err)
	}
	if payment == nil {
		return model.Errorf(model.ErrNotFound, "payment %d not found", paymentID)
	}
	if payment.Status == model.PaymentStatusCaptured {
		return nil
	}
	if payment.Status != model.PaymentStatusAuthorized || payment.ProviderPaymentID == nil {
		return model.ErrPaymentNotAuthorized
	}

	err = s.gateway.CapturePayment(ctx, *payment.ProviderPaymentID, payment.Amount, payment.Currency)
	if err != nil && !errors.Is(err, gateway.ErrAlreadyCaptured) {
		return model.Wrap(model.ErrGatewayUnavailable, err)
	}

	now := s.policy.now()
	var confirmed *model.Booking
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		locked, err := tx.Payments().GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if locked == nil {
			return nil
		}
		confirmed, err = markCapturedTx(ctx, tx, locked, "", nil, now)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("Payment captured",
		zap.Int64("payment_id", paymentID),
		zap.String("provider_payment_id", *payment.ProviderPaymentID),
	)
	if confirmed != nil {
		s.dispatcher.BookingConfirmed(confirmed)
	}
	return nil
}
