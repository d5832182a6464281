package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/repository/base"
)

type SubscriptionRepository struct {
	db *base.Repository
}

const subscriptionColumns = `id, host_id, learner_id, rule_id, current_booking_id, provider_plan_id,
	provider_subscription_id, price, status, start_at, end_at, next_charge_at, pause_until, created_at, updated_at`

func scanSubscription(row base.Scanner) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.ID,
		&s.HostID,
		&s.LearnerID,
		&s.RuleID,
		&s.CurrentBookingID,
		&s.ProviderPlanID,
		&s.ProviderSubscriptionID,
		&s.Price,
		&s.Status,
		&s.StartAt,
		&s.EndAt,
		&s.NextChargeAt,
		&s.PauseUntil,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *model.Subscription) error {
	query := `
		INSERT INTO subscriptions (host_id, learner_id, rule_id, current_booking_id, provider_plan_id,
			provider_subscription_id, price, status, start_at, end_at, next_charge_at, pause_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		s.HostID,
		s.LearnerID,
		s.RuleID,
		s.CurrentBookingID,
		s.ProviderPlanID,
		s.ProviderSubscriptionID,
		s.Price,
		s.Status,
		s.StartAt,
		s.EndAt,
		s.NextChargeAt,
		s.PauseUntil,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		return conflict("create subscription", err)
	}
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	return r.getOne(ctx, "get subscription", `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (r *SubscriptionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Subscription, error) {
	return r.getOne(ctx, "lock subscription", `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id)
}

func (r *SubscriptionRepository) GetByProviderIDForUpdate(ctx context.Context, providerID string) (*model.Subscription, error) {
	return r.getOne(ctx, "lock subscription by provider id",
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = $1 FOR UPDATE`, providerID)
}

func (r *SubscriptionRepository) GetLiveByRule(ctx context.Context, ruleID int64) (*model.Subscription, error) {
	return r.getOne(ctx, "get live subscription",
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE rule_id = $1 AND status <> 'CANCELED'`, ruleID)
}

func (r *SubscriptionRepository) Update(ctx context.Context, s *model.Subscription) error {
	query := `
		UPDATE subscriptions
		SET current_booking_id = $2, provider_plan_id = $3, provider_subscription_id = $4, status = $5,
		    start_at = $6, end_at = $7, next_charge_at = $8, pause_until = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		s.ID,
		s.CurrentBookingID,
		s.ProviderPlanID,
		s.ProviderSubscriptionID,
		s.Status,
		s.StartAt,
		s.EndAt,
		s.NextChargeAt,
		s.PauseUntil,
	).Scan(&s.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("subscription %d not found", s.ID)
		}
		return conflict("update subscription", err)
	}
	return nil
}

func (r *SubscriptionRepository) ListPausedDue(ctx context.Context, now time.Time) ([]*model.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE status = 'PAUSED' AND pause_until <= $1 ORDER BY pause_until`,
		now)
	if err != nil {
		return nil, fmt.Errorf("list paused subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) ListCheckoutExpired(ctx context.Context, createdBefore, startsBefore time.Time) ([]*model.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'CREATED'
		  AND (created_at <= $1
		       OR current_booking_id IN (SELECT id FROM bookings WHERE status = 'PENDING' AND start_time <= $2))
		ORDER BY created_at`,
		createdBefore, startsBefore)
	if err != nil {
		return nil, fmt.Errorf("list expired subscription checkouts: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
