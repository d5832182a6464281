package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/repository/base"
)

type SlotRepository struct {
	db *base.Repository
}

const slotColumns = `id, host_id, rule_id, start_time, end_time, duration_minutes, price, mode, status, created_at, updated_at`

func scanSlot(row base.Scanner) (*model.Slot, error) {
	var slot model.Slot
	err := row.Scan(
		&slot.ID,
		&slot.HostID,
		&slot.RuleID,
		&slot.StartTime,
		&slot.EndTime,
		&slot.DurationMinutes,
		&slot.Price,
		&slot.Mode,
		&slot.Status,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *SlotRepository) getOne(ctx context.Context, op, query string, args ...any) (*model.Slot, error) {
	slot, err := scanSlot(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return slot, nil
}

func (r *SlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (host_id, rule_id, start_time, end_time, duration_minutes, price, mode, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		slot.HostID,
		slot.RuleID,
		slot.StartTime,
		slot.EndTime,
		slot.DurationMinutes,
		slot.Price,
		slot.Mode,
		slot.Status,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)

	if err != nil {
		return conflict("create slot", err)
	}
	return nil
}

// Ensure relies on the (rule_id, start_time) constraint so concurrent callers converge on one row.
func (r *SlotRepository) Ensure(ctx context.Context, slot *model.Slot) (bool, error) {
	if slot.RuleID == nil {
		if err := r.Create(ctx, slot); err != nil {
			return false, err
		}
		return true, nil
	}

	query := `
		INSERT INTO slots (host_id, rule_id, start_time, end_time, duration_minutes, price, mode, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (rule_id, start_time) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		slot.HostID,
		slot.RuleID,
		slot.StartTime,
		slot.EndTime,
		slot.DurationMinutes,
		slot.Price,
		slot.Mode,
		slot.Status,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)

	if err == nil {
		return true, nil
	}
	if !base.IsNotFound(err) {
		return false, fmt.Errorf("ensure slot: %w", err)
	}

	existing, err := r.getOne(ctx, "load existing slot",
		`SELECT `+slotColumns+` FROM slots WHERE rule_id = $1 AND start_time = $2`,
		slot.RuleID, slot.StartTime)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("ensure slot: rule %d at %s vanished", *slot.RuleID, slot.StartTime)
	}
	*slot = *existing
	return false, nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.Slot, error) {
	return r.getOne(ctx, "get slot by id", `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
}

func (r *SlotRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Slot, error) {
	return r.getOne(ctx, "lock slot", `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id)
}

func (r *SlotRepository) NextAvailableForRule(ctx context.Context, ruleID int64, from time.Time) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE rule_id = $1 AND status = 'AVAILABLE' AND start_time > $2
		ORDER BY start_time
		LIMIT 1
		FOR UPDATE
	`
	return r.getOne(ctx, "next available slot", query, ruleID, from)
}

func (r *SlotRepository) ListByHost(ctx context.Context, hostID int64, from, to time.Time) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE host_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, hostID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list host slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (r *SlotRepository) UpdateStatus(ctx context.Context, id int64, status model.SlotStatus) error {
	n, err := r.db.ExecAffected(ctx,
		`UPDATE slots SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("slot %d not found", id)
	}
	return nil
}

func (r *SlotRepository) DeleteFreeByRule(ctx context.Context, ruleID int64, from time.Time) (int64, error) {
	query := `
		DELETE FROM slots s
		WHERE s.rule_id = $1
		  AND s.status = 'AVAILABLE'
		  AND s.start_time >= $2
		  AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.slot_id = s.id)
	`
	n, err := r.db.ExecAffected(ctx, query, ruleID, from)
	if err != nil {
		return 0, fmt.Errorf("delete free rule slots: %w", err)
	}
	return n, nil
}
