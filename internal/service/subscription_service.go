package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

// SubscriptionService sells a RECURRING rule as a weekly gateway subscription.
type SubscriptionService struct {
	store      ledger.Store
	gateway    gateway.Gateway
	dispatcher Dispatcher
	policy     Policy
	logger     *zap.Logger
}

// NewSubscriptionService creates the recurring subscription service.
func NewSubscriptionService(store ledger.Store, gw gateway.Gateway, dispatcher Dispatcher, policy Policy, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		store:      store,
		gateway:    gw,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
	}
}

// SubscriptionCheckout is what the client needs to authorize the subscription mandate.
type SubscriptionCheckout struct {
	Subscription           *model.Subscription `json:"subscription"`
	Booking                *model.Booking      `json:"booking"`
	ProviderSubscriptionID string              `json:"provider_subscription_id"`
	KeyID                  string              `json:"key_id"`
}

// Create registers the plan and subscription at the gateway, then reserves the rule's next
// slot as the first PENDING booking. The booking is confirmed by subscription.charged.
func (s *SubscriptionService) Create(ctx context.Context, principal model.Principal, ruleID int64) (*SubscriptionCheckout, error) {
	ctx, span := tracer.Start(ctx, "subscriptions.create")
	defer span.End()

	now := s.policy.now()
	reader := s.store.Read()

	rule, err := reader.Rules().GetByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	if rule == nil {
		return nil, model.Errorf(model.ErrNotFound, "rule %d not found", ruleID)
	}
	if !rule.IsActive || rule.Mode != model.SlotModeRecurring {
		return nil, model.Errorf(model.ErrRuleUnavailable, "rule %d is not open for subscriptions", ruleID)
	}
	if rule.HostID == principal.ID {
		return nil, model.Errorf(model.ErrBadRequest, "cannot subscribe to your own rule")
	}
	live, err := reader.Subscriptions().GetLiveByRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("get live subscription: %w", err)
	}
	if live != nil {
		return nil, model.Errorf(model.ErrSubscriptionNotReady, "rule %d already has a subscription", ruleID)
	}

	planID, err := s.gateway.CreatePlan(ctx, gateway.PlanRequest{
		Name:     fmt.Sprintf("Weekly session #%d", rule.ID),
		Period:   "weekly",
		Interval: 1,
		Amount:   rule.Price,
		Currency: s.policy.Currency,
	})
	if err != nil {
		return nil, model.Wrap(model.ErrGatewayUnavailable, err)
	}

	// First charge lands one capture offset before the first session when that is still ahead.
	var startAt *time.Time
	if chargeAt := nextOccurrence(rule, now).Add(-s.policy.CaptureOffset); chargeAt.After(now.Add(time.Hour)) {
		startAt = &chargeAt
	}
	providerID, err := s.gateway.CreateSubscription(ctx, gateway.SubscriptionRequest{
		PlanID:     planID,
		TotalCount: s.policy.SubscriptionCycles,
		StartAt:    startAt,
		Notes: map[string]string{
			"rule_id":    strconv.FormatInt(rule.ID, 10),
			"learner_id": strconv.FormatInt(principal.ID, 10),
		},
	})
	if err != nil {
		return nil, model.Wrap(model.ErrGatewayUnavailable, err)
	}

	sub := &model.Subscription{
		HostID:                 rule.HostID,
		LearnerID:              principal.ID,
		RuleID:                 rule.ID,
		ProviderPlanID:         &planID,
		ProviderSubscriptionID: &providerID,
		Price:                  rule.Price,
		Status:                 model.SubscriptionStatusCreated,
		StartAt:                startAt,
	}
	var booking *model.Booking
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		slot, err := findOrCreateNextSlotTx(ctx, tx, rule.ID, now)
		if err != nil {
			return err
		}
		if err := tx.Subscriptions().Create(ctx, sub); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				return model.Errorf(model.ErrSubscriptionNotReady, "rule %d already has a subscription", rule.ID)
			}
			return fmt.Errorf("create subscription: %w", err)
		}
		booking, err = reserveSlotTx(ctx, tx, slot, principal.ID, &sub.ID, s.policy)
		if err != nil {
			return err
		}
		sub.CurrentBookingID = &booking.ID
		return tx.Subscriptions().Update(ctx, sub)
	})
	if err != nil {
		if cancelErr := s.gateway.CancelSubscription(ctx, providerID); cancelErr != nil {
			s.logger.Warn("Failed to cancel orphaned gateway subscription",
				zap.String("provider_subscription_id", providerID),
				zap.Error(cancelErr),
			)
		}
		return nil, err
	}

	s.logger.Info("Subscription created",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("rule_id", rule.ID),
		zap.Int64("booking_id", booking.ID),
		zap.String("provider_subscription_id", providerID),
	)
	return &SubscriptionCheckout{
		Subscription:           sub,
		Booking:                booking,
		ProviderSubscriptionID: providerID,
		KeyID:                  s.gateway.KeyID(),
	}, nil
}

func (s *SubscriptionService) Get(ctx context.Context, principal model.Principal, id int64) (*model.Subscription, error) {
	sub, err := s.store.Read().Subscriptions().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil {
		return nil, model.Errorf(model.ErrNotFound, "subscription %d not found", id)
	}
	if !sub.IsParty(principal.ID) && principal.Role != model.RoleAdmin {
		return nil, model.ErrForbidden
	}
	return sub, nil
}

// Pause stops charging until resumed; with until set, the sweeper resumes it automatically.
func (s *SubscriptionService) Pause(ctx context.Context, principal model.Principal, id int64, until *time.Time) (*model.Subscription, error) {
	sub, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionStatusActive || sub.ProviderSubscriptionID == nil {
		return nil, model.Errorf(model.ErrSubscriptionNotReady, "subscription is %s", sub.Status)
	}
	if until != nil && !until.After(s.policy.now()) {
		return nil, model.Errorf(model.ErrBadRequest, "pause end must be in the future")
	}

	if err := s.gateway.PauseSubscription(ctx, *sub.ProviderSubscriptionID); err != nil {
		return nil, model.Wrap(model.ErrGatewayUnavailable, err)
	}

	return s.transition(ctx, id, func(sub *model.Subscription) bool {
		if sub.Status != model.SubscriptionStatusActive {
			return false
		}
		sub.Status = model.SubscriptionStatusPaused
		sub.PauseUntil = until
		return true
	})
}

func (s *SubscriptionService) Resume(ctx context.Context, principal model.Principal, id int64) (*model.Subscription, error) {
	sub, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	return s.resume(ctx, sub)
}

func (s *SubscriptionService) resume(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	if sub.Status != model.SubscriptionStatusPaused || sub.ProviderSubscriptionID == nil {
		return nil, model.Errorf(model.ErrSubscriptionNotReady, "subscription is %s", sub.Status)
	}
	if err := s.gateway.ResumeSubscription(ctx, *sub.ProviderSubscriptionID); err != nil {
		return nil, model.Wrap(model.ErrGatewayUnavailable, err)
	}

	return s.transition(ctx, sub.ID, func(sub *model.Subscription) bool {
		if sub.Status != model.SubscriptionStatusPaused {
			return false
		}
		sub.Status = model.SubscriptionStatusActive
		sub.PauseUntil = nil
		return true
	})
}

// Cancel ends the subscription and releases its still-unpaid booking.
func (s *SubscriptionService) Cancel(ctx context.Context, principal model.Principal, id int64) (*model.Subscription, error) {
	sub, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if !sub.Live() {
		return nil, model.Errorf(model.ErrSubscriptionNotReady, "subscription is %s", sub.Status)
	}
	if sub.ProviderSubscriptionID != nil {
		if err := s.gateway.CancelSubscription(ctx, *sub.ProviderSubscriptionID); err != nil {
			return nil, model.Wrap(model.ErrGatewayUnavailable, err)
		}
	}

	now := s.policy.now()
	var released *model.Booking
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		var err error
		sub, err = tx.Subscriptions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}
		if sub == nil {
			return model.Errorf(model.ErrNotFound, "subscription %d not found", id)
		}
		released, err = cancelSubscriptionTx(ctx, tx, sub, now, "subscription canceled")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Subscription canceled", zap.Int64("subscription_id", id), zap.Int64("user_id", principal.ID))
	if released != nil {
		s.dispatcher.BookingCanceled(released)
	}
	return sub, nil
}

// expireCheckout cancels a subscription whose checkout was never completed and frees
// its reserved slot. A subscription that left CREATED since the listing is kept.
func (s *SubscriptionService) expireCheckout(ctx context.Context, sub *model.Subscription) (*model.Booking, error) {
	if sub.ProviderSubscriptionID != nil {
		if err := s.gateway.CancelSubscription(ctx, *sub.ProviderSubscriptionID); err != nil {
			return nil, model.Wrap(model.ErrGatewayUnavailable, err)
		}
	}

	now := s.policy.now()
	var released *model.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		locked, err := tx.Subscriptions().GetByIDForUpdate(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}
		if locked == nil || locked.Status != model.SubscriptionStatusCreated {
			return nil
		}
		released, err = cancelSubscriptionTx(ctx, tx, locked, now, "payment window expired")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Subscription checkout expired", zap.Int64("subscription_id", sub.ID))
	return released, nil
}

// cancelSubscriptionTx marks the subscription CANCELED and frees its PENDING booking.
func cancelSubscriptionTx(ctx context.Context, tx ledger.Repos, sub *model.Subscription, now time.Time, reason string) (*model.Booking, error) {
	if !sub.Live() {
		return nil, nil
	}
	sub.Status = model.SubscriptionStatusCanceled
	sub.EndAt = &now
	sub.PauseUntil = nil

	var released *model.Booking
	if sub.CurrentBookingID != nil {
		var err error
		released, err = releasePendingTx(ctx, tx, *sub.CurrentBookingID, reason)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Subscriptions().Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return released, nil
}

func (s *SubscriptionService) transition(ctx context.Context, id int64, apply func(*model.Subscription) bool) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		var err error
		sub, err = tx.Subscriptions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}
		if sub == nil {
			return model.Errorf(model.ErrNotFound, "subscription %d not found", id)
		}
		if !apply(sub) {
			return nil
		}
		return tx.Subscriptions().Update(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Subscription updated",
		zap.Int64("subscription_id", sub.ID),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}
