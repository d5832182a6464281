package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/repository/base"
)

type PaymentRepository struct {
	db *base.Repository
}

const paymentColumns = `id, booking_id, subscription_id, provider, provider_order_id, provider_payment_id,
	amount, currency, status, method, hold_expires_at, scheduled_capture_at, captured_at, raw_payload,
	created_at, updated_at`

func scanPayment(row base.Scanner) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.ID,
		&p.BookingID,
		&p.SubscriptionID,
		&p.Provider,
		&p.ProviderOrderID,
		&p.ProviderPaymentID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.Method,
		&p.HoldExpiresAt,
		&p.ScheduledCaptureAt,
		&p.CapturedAt,
		&p.RawPayload,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (r *PaymentRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// rawJSON keeps NULL for empty payloads so the jsonb column accepts it.
func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	query := `
		INSERT INTO payments (booking_id, subscription_id, provider, provider_order_id, provider_payment_id,
			amount, currency, status, method, hold_expires_at, scheduled_capture_at, captured_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.BookingID,
		p.SubscriptionID,
		p.Provider,
		p.ProviderOrderID,
		p.ProviderPaymentID,
		p.Amount,
		p.Currency,
		p.Status,
		p.Method,
		p.HoldExpiresAt,
		p.ScheduledCaptureAt,
		p.CapturedAt,
		rawJSON(p.RawPayload),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return conflict("create payment", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	return r.getOne(ctx, "get payment", `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Payment, error) {
	return r.getOne(ctx, "lock payment", `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (r *PaymentRepository) GetByBookingForUpdate(ctx context.Context, bookingID int64) (*model.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`
	return r.getOne(ctx, "lock booking payment", query, bookingID)
}

func (r *PaymentRepository) FindByProviderRefForUpdate(ctx context.Context, paymentID, orderID string) (*model.Payment, error) {
	if paymentID != "" {
		p, err := r.getOne(ctx, "find payment by provider id",
			`SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id = $1 FOR UPDATE`, paymentID)
		if err != nil || p != nil {
			return p, err
		}
	}
	if orderID == "" {
		return nil, nil
	}
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE provider_order_id = $1
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`
	return r.getOne(ctx, "find payment by order id", query, orderID)
}

func (r *PaymentRepository) Update(ctx context.Context, p *model.Payment) error {
	query := `
		UPDATE payments
		SET provider_order_id = $2, provider_payment_id = $3, status = $4, method = $5,
		    hold_expires_at = $6, scheduled_capture_at = $7, captured_at = $8,
		    raw_payload = COALESCE($9::jsonb, raw_payload), updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.ID,
		p.ProviderOrderID,
		p.ProviderPaymentID,
		p.Status,
		p.Method,
		p.HoldExpiresAt,
		p.ScheduledCaptureAt,
		p.CapturedAt,
		rawJSON(p.RawPayload),
	).Scan(&p.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("payment %d not found", p.ID)
		}
		return conflict("update payment", err)
	}
	return nil
}

func (r *PaymentRepository) DeleteByBooking(ctx context.Context, bookingID int64) (int64, error) {
	n, err := r.db.ExecAffected(ctx,
		`DELETE FROM payments WHERE booking_id = $1 AND status <> 'CAPTURED'`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("delete booking payments: %w", err)
	}
	return n, nil
}

func (r *PaymentRepository) ListAuthorizedDue(ctx context.Context, now time.Time) ([]*model.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'AUTHORIZED' AND scheduled_capture_at <= $1
		ORDER BY scheduled_capture_at
	`
	return r.list(ctx, "list capture-due payments", query, now)
}

func (r *PaymentRepository) ListCreatedExpired(ctx context.Context, now time.Time) ([]*model.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'CREATED' AND hold_expires_at <= $1
		ORDER BY hold_expires_at
	`
	return r.list(ctx, "list expired holds", query, now)
}
