package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/repository/base"
)

type RuleRepository struct {
	db *base.Repository
}

const ruleColumns = `id, host_id, weekday, start_hour, start_minute, duration_minutes, price, mode, timezone, is_active, created_at, updated_at`

func scanRule(row base.Scanner) (*model.AvailabilityRule, error) {
	var rule model.AvailabilityRule
	err := row.Scan(
		&rule.ID,
		&rule.HostID,
		&rule.Weekday,
		&rule.StartHour,
		&rule.StartMinute,
		&rule.DurationMinutes,
		&rule.Price,
		&rule.Mode,
		&rule.Timezone,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.AvailabilityRule) error {
	query := `
		INSERT INTO availability_rules (host_id, weekday, start_hour, start_minute, duration_minutes, price, mode, timezone, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		rule.HostID,
		rule.Weekday,
		rule.StartHour,
		rule.StartMinute,
		rule.DurationMinutes,
		rule.Price,
		rule.Mode,
		rule.Timezone,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create availability rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) get(ctx context.Context, query string, id int64) (*model.AvailabilityRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability rule: %w", err)
	}
	return rule, nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*model.AvailabilityRule, error) {
	return r.get(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = $1`, id)
}

// GetByIDForUpdate serializes slot minting and subscription creation per rule.
func (r *RuleRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.AvailabilityRule, error) {
	return r.get(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = $1 FOR UPDATE`, id)
}

func (r *RuleRepository) Update(ctx context.Context, rule *model.AvailabilityRule) error {
	query := `
		UPDATE availability_rules
		SET weekday = $2, start_hour = $3, start_minute = $4, duration_minutes = $5,
		    price = $6, mode = $7, timezone = $8, is_active = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		rule.ID,
		rule.Weekday,
		rule.StartHour,
		rule.StartMinute,
		rule.DurationMinutes,
		rule.Price,
		rule.Mode,
		rule.Timezone,
		rule.IsActive,
	).Scan(&rule.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("availability rule %d not found", rule.ID)
		}
		return fmt.Errorf("update availability rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) Deactivate(ctx context.Context, id int64) error {
	n, err := r.db.ExecAffected(ctx,
		`UPDATE availability_rules SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate availability rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("availability rule %d not found", id)
	}
	return nil
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]*model.AvailabilityRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ruleColumns+` FROM availability_rules WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepository) HasLockedSlots(ctx context.Context, ruleID int64) (bool, error) {
	var locked bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM slots WHERE rule_id = $1 AND status IN ('RESERVED', 'BOOKED'))`,
		ruleID,
	).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("check locked slots: %w", err)
	}
	return locked, nil
}
