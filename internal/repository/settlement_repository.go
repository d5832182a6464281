package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/repository/base"
)

type DisputeRepository struct {
	db *base.Repository
}

func (r *DisputeRepository) Create(ctx context.Context, d *model.Dispute) error {
	query := `
		INSERT INTO disputes (booking_id, raised_by, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, d.BookingID, d.RaisedBy, d.Reason, d.Status).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

type PayoutRepository struct {
	db *base.Repository
}

func (r *PayoutRepository) Create(ctx context.Context, p *model.Payout) error {
	query := `
		INSERT INTO payouts (booking_id, host_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, p.BookingID, p.HostID, p.Amount, p.Currency, p.Status).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return conflict("create payout", err)
	}
	return nil
}

func (r *PayoutRepository) GetByBooking(ctx context.Context, bookingID int64) (*model.Payout, error) {
	query := `
		SELECT id, booking_id, host_id, amount, currency, status, created_at
		FROM payouts
		WHERE booking_id = $1
	`
	var p model.Payout
	err := r.db.QueryRow(ctx, query, bookingID).Scan(
		&p.ID,
		&p.BookingID,
		&p.HostID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return &p, nil
}

type ConversationRepository struct {
	db *base.Repository
}

func (r *ConversationRepository) Ensure(ctx context.Context, hostID, learnerID, bookingID int64) (*model.Conversation, error) {
	query := `
		INSERT INTO conversations (host_id, learner_id, last_booking_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (host_id, learner_id) DO UPDATE SET last_booking_id = EXCLUDED.last_booking_id
		RETURNING id, host_id, learner_id, last_booking_id, created_at
	`
	var c model.Conversation
	err := r.db.QueryRow(ctx, query, hostID, learnerID, bookingID).Scan(
		&c.ID,
		&c.HostID,
		&c.LearnerID,
		&c.LastBookingID,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	return &c, nil
}

type ProviderEventRepository struct {
	db *base.Repository
}

func (r *ProviderEventRepository) Record(ctx context.Context, ev *model.ProviderEvent) (bool, error) {
	query := `
		INSERT INTO provider_events (provider, event_key, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, event_key) DO NOTHING
		RETURNING id, received_at
	`
	err := r.db.QueryRow(ctx, query, ev.Provider, ev.EventKey, ev.EventType, string(ev.Payload)).Scan(&ev.ID, &ev.ReceivedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("record provider event: %w", err)
	}
	return true, nil
}
