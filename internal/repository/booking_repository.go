package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/repository/base"
)

type BookingRepository struct {
	db *base.Repository
}

const bookingColumns = `id, host_id, learner_id, slot_id, subscription_id, start_time, end_time, price,
	platform_fee, commission_rate, status, meeting_link, cancel_reason, created_at, updated_at`

func scanBooking(row base.Scanner) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.HostID,
		&b.LearnerID,
		&b.SlotID,
		&b.SubscriptionID,
		&b.StartTime,
		&b.EndTime,
		&b.Price,
		&b.PlatformFee,
		&b.CommissionRate,
		&b.Status,
		&b.MeetingLink,
		&b.CancelReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	query := `
		INSERT INTO bookings (host_id, learner_id, slot_id, subscription_id, start_time, end_time,
			price, platform_fee, commission_rate, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		b.HostID,
		b.LearnerID,
		b.SlotID,
		b.SubscriptionID,
		b.StartTime,
		b.EndTime,
		b.Price,
		b.PlatformFee,
		b.CommissionRate,
		b.Status,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)

	if err != nil {
		return conflict("create booking", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	return r.getOne(ctx, "get booking by id", `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	return r.getOne(ctx, "lock booking", `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepository) GetBySlotID(ctx context.Context, slotID int64) (*model.Booking, error) {
	return r.getOne(ctx, "get booking by slot", `SELECT `+bookingColumns+` FROM bookings WHERE slot_id = $1`, slotID)
}

func (r *BookingRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecAffected(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, status model.BookingStatus, reason *string) error {
	query := `
		UPDATE bookings
		SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = now()
		WHERE id = $1
	`
	n, err := r.db.ExecAffected(ctx, query, id, status, reason)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("booking %d not found", id)
	}
	return nil
}

func (r *BookingRepository) SetMeetingLink(ctx context.Context, id int64, link string) error {
	n, err := r.db.ExecAffected(ctx,
		`UPDATE bookings SET meeting_link = $2, updated_at = now() WHERE id = $1`, id, link)
	if err != nil {
		return fmt.Errorf("set meeting link: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("booking %d not found", id)
	}
	return nil
}

func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE host_id = $1 OR learner_id = $1
		ORDER BY start_time DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
