package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

// Sweeper performs the time-driven transitions: scheduled captures, expired holds,
// abandoned subscription checkouts and paused subscriptions that are due to resume. Each row is handled on its own;
// a failure is logged and the row is retried on the next pass.
type Sweeper struct {
	store         ledger.Store
	bookings      *BookingService
	subscriptions *SubscriptionService
	dispatcher    Dispatcher
	policy        Policy
	logger        *zap.Logger
}

// NewSweeper creates a sweeper over the given services.
func NewSweeper(store ledger.Store, bookings *BookingService, subscriptions *SubscriptionService, dispatcher Dispatcher, policy Policy, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:         store,
		bookings:      bookings,
		subscriptions: subscriptions,
		dispatcher:    dispatcher,
		policy:        policy,
		logger:        logger,
	}
}

// SweepReport counts the rows one pass changed or failed on.
type SweepReport struct {
	Captured int
	Expired  int
	Resumed  int
	Failed   int
}

// Run performs one full pass.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "sweeper.run")
	defer span.End()

	var report SweepReport
	if err := s.CaptureDuePayments(ctx, &report); err != nil {
		return report, err
	}
	if err := s.CancelOverdueBookings(ctx, &report); err != nil {
		return report, err
	}
	if err := s.ExpireAbandonedSubscriptions(ctx, &report); err != nil {
		return report, err
	}
	if err := s.ResumeDueSubscriptions(ctx, &report); err != nil {
		return report, err
	}

	if report != (SweepReport{}) {
		s.logger.Info("Sweep finished",
			zap.Int("captured", report.Captured),
			zap.Int("expired", report.Expired),
			zap.Int("resumed", report.Resumed),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// CaptureDuePayments captures AUTHORIZED payments whose capture time has come.
func (s *Sweeper) CaptureDuePayments(ctx context.Context, report *SweepReport) error {
	due, err := s.store.Read().Payments().ListAuthorizedDue(ctx, s.policy.now())
	if err != nil {
		return fmt.Errorf("list capture-due payments: %w", err)
	}

	for _, p := range due {
		if err := s.bookings.CapturePayment(ctx, p.ID); err != nil {
			s.logger.Warn("Scheduled capture failed",
				zap.Int64("payment_id", p.ID),
				zap.Error(err),
			)
			report.Failed++
			continue
		}
		report.Captured++
	}
	return nil
}

// CancelOverdueBookings fails unpaid checkouts whose hold window elapsed and frees their slots.
func (s *Sweeper) CancelOverdueBookings(ctx context.Context, report *SweepReport) error {
	expired, err := s.store.Read().Payments().ListCreatedExpired(ctx, s.policy.now())
	if err != nil {
		return fmt.Errorf("list expired holds: %w", err)
	}

	for _, p := range expired {
		released, err := s.expireHold(ctx, p.ID)
		if err != nil {
			s.logger.Warn("Failed to expire hold",
				zap.Int64("payment_id", p.ID),
				zap.Error(err),
			)
			report.Failed++
			continue
		}
		if released != nil {
			report.Expired++
			s.dispatcher.BookingCanceled(released)
		}
	}
	return nil
}

func (s *Sweeper) expireHold(ctx context.Context, paymentID int64) (*model.Booking, error) {
	now := s.policy.now()
	var released *model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		payment, err := tx.Payments().GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		// Re-check under lock: a capture may have landed since the listing.
		if payment == nil || payment.Status != model.PaymentStatusCreated ||
			payment.HoldExpiresAt == nil || payment.HoldExpiresAt.After(now) {
			return nil
		}

		payment.Status = model.PaymentStatusFailed
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}
		if payment.BookingID == nil {
			return nil
		}
		released, err = releasePendingTx(ctx, tx, *payment.BookingID, "payment window expired")
		return err
	})
	return released, err
}

// ExpireAbandonedSubscriptions cancels CREATED subscriptions whose checkout stayed open past
// the hold window, or past the start of their first session, and frees the reserved slot.
func (s *Sweeper) ExpireAbandonedSubscriptions(ctx context.Context, report *SweepReport) error {
	now := s.policy.now()
	stale, err := s.store.Read().Subscriptions().ListCheckoutExpired(ctx, now.Add(-s.policy.HoldWindow), now)
	if err != nil {
		return fmt.Errorf("list abandoned subscriptions: %w", err)
	}

	for _, sub := range stale {
		released, err := s.subscriptions.expireCheckout(ctx, sub)
		if err != nil {
			s.logger.Warn("Failed to expire subscription checkout",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err),
			)
			report.Failed++
			continue
		}
		if released != nil {
			report.Expired++
			s.dispatcher.BookingCanceled(released)
		}
	}
	return nil
}

// ResumeDueSubscriptions resumes PAUSED subscriptions whose pause end has passed.
func (s *Sweeper) ResumeDueSubscriptions(ctx context.Context, report *SweepReport) error {
	due, err := s.store.Read().Subscriptions().ListPausedDue(ctx, s.policy.now())
	if err != nil {
		return fmt.Errorf("list paused subscriptions: %w", err)
	}

	for _, sub := range due {
		if _, err := s.subscriptions.resume(ctx, sub); err != nil {
			s.logger.Warn("Failed to resume subscription",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err),
			)
			report.Failed++
			continue
		}
		report.Resumed++
	}
	return nil
}
