package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

// SlotService owns availability: rules, their expansion into slots, and slot reservation.
type SlotService struct {
	store   ledger.Store
	gateway gateway.Gateway
	policy  Policy
	logger  *zap.Logger
}

// NewSlotService creates the slot and availability rule service.
func NewSlotService(store ledger.Store, gw gateway.Gateway, policy Policy, logger *zap.Logger) *SlotService {
	return &SlotService{
		store:   store,
		gateway: gw,
		policy:  policy,
		logger:  logger,
	}
}

// RuleInput describes a weekly availability rule in the host's local time.
type RuleInput struct {
	Weekday         int
	StartHour       int
	StartMinute     int
	DurationMinutes int
	Price           int64
	Mode            model.SlotMode
	Timezone        string
}

func (in RuleInput) validate() error {
	switch {
	case in.Weekday < 0 || in.Weekday > 6:
		return model.Errorf(model.ErrBadRequest, "weekday must be 0-6")
	case in.StartHour < 0 || in.StartHour > 23 || in.StartMinute < 0 || in.StartMinute > 59:
		return model.Errorf(model.ErrBadRequest, "invalid start time")
	case in.DurationMinutes <= 0:
		return model.Errorf(model.ErrBadRequest, "duration must be positive")
	case in.Price < 0:
		return model.Errorf(model.ErrBadRequest, "price must not be negative")
	case !in.Mode.Valid():
		return model.Errorf(model.ErrBadRequest, "unknown mode %q", in.Mode)
	}
	if _, err := time.LoadLocation(in.Timezone); err != nil {
		return model.Errorf(model.ErrBadRequest, "unknown timezone %q", in.Timezone)
	}
	return nil
}

func (in RuleInput) apply(rule *model.AvailabilityRule) {
	rule.Weekday = in.Weekday
	rule.StartHour = in.StartHour
	rule.StartMinute = in.StartMinute
	rule.DurationMinutes = in.DurationMinutes
	rule.Price = in.Price
	rule.Mode = in.Mode
	rule.Timezone = in.Timezone
}

// CreateRule stores a weekly rule and expands it over the configured horizon.
func (s *SlotService) CreateRule(ctx context.Context, principal model.Principal, in RuleInput) (*model.AvailabilityRule, error) {
	if !principal.IsHost() {
		return nil, model.Errorf(model.ErrForbidden, "only hosts can publish availability")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	rule := &model.AvailabilityRule{HostID: principal.ID, IsActive: true}
	in.apply(rule)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		return tx.Rules().Create(ctx, rule)
	})
	if err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}

	s.logger.Info("Availability rule created",
		zap.Int64("rule_id", rule.ID),
		zap.Int64("host_id", rule.HostID),
		zap.String("mode", string(rule.Mode)),
	)

	if _, err := s.ExpandRule(ctx, rule, s.policy.now(), s.policy.ExpansionDays); err != nil {
		s.logger.Warn("Initial rule expansion failed", zap.Int64("rule_id", rule.ID), zap.Error(err))
	}
	return rule, nil
}

// lockOwnedRuleTx loads the rule for update and refuses edits while any of its slots is held or sold.
func (s *SlotService) lockOwnedRuleTx(ctx context.Context, tx ledger.Repos, principal model.Principal, ruleID int64) (*model.AvailabilityRule, error) {
	rule, err := tx.Rules().GetByIDForUpdate(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("lock rule: %w", err)
	}
	if rule == nil {
		return nil, model.Errorf(model.ErrNotFound, "rule %d not found", ruleID)
	}
	if rule.HostID != principal.ID {
		return nil, model.ErrForbidden
	}

	locked, err := tx.Rules().HasLockedSlots(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, model.Errorf(model.ErrRuleUnavailable, "rule %d has reserved or booked slots", rule.ID)
	}
	sub, err := tx.Subscriptions().GetLiveByRule(ctx, rule.ID)
	if err != nil {
		return nil, fmt.Errorf("get live subscription: %w", err)
	}
	if sub != nil {
		return nil, model.Errorf(model.ErrRuleUnavailable, "rule %d has a live subscription", rule.ID)
	}
	return rule, nil
}

// UpdateRule rewrites an unlocked rule and regenerates its free future slots.
func (s *SlotService) UpdateRule(ctx context.Context, principal model.Principal, ruleID int64, in RuleInput) (*model.AvailabilityRule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.policy.now()

	var rule *model.AvailabilityRule
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		var err error
		rule, err = s.lockOwnedRuleTx(ctx, tx, principal, ruleID)
		if err != nil {
			return err
		}
		in.apply(rule)
		if err := tx.Rules().Update(ctx, rule); err != nil {
			return err
		}
		_, err = tx.Slots().DeleteFreeByRule(ctx, rule.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Availability rule updated", zap.Int64("rule_id", rule.ID))

	if rule.IsActive {
		if _, err := s.ExpandRule(ctx, rule, now, s.policy.ExpansionDays); err != nil {
			s.logger.Warn("Rule re-expansion failed", zap.Int64("rule_id", rule.ID), zap.Error(err))
		}
	}
	return rule, nil
}

// DeleteRule retires an unlocked rule and drops its free future slots.
func (s *SlotService) DeleteRule(ctx context.Context, principal model.Principal, ruleID int64) error {
	now := s.policy.now()
	var removed int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		rule, err := s.lockOwnedRuleTx(ctx, tx, principal, ruleID)
		if err != nil {
			return err
		}
		if err := tx.Rules().Deactivate(ctx, rule.ID); err != nil {
			return err
		}
		removed, err = tx.Slots().DeleteFreeByRule(ctx, rule.ID, now)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("Availability rule deleted",
		zap.Int64("rule_id", ruleID),
		zap.Int64("slots_removed", removed),
	)
	return nil
}

// ExpandRule materializes every occurrence of the rule in [windowStart, windowStart+totalDays].
// Occurrences already in the past are skipped; existing slots are returned as they are.
func (s *SlotService) ExpandRule(ctx context.Context, rule *model.AvailabilityRule, windowStart time.Time, totalDays int) ([]*model.Slot, error) {
	ctx, span := tracer.Start(ctx, "slots.expand_rule")
	defer span.End()

	now := s.policy.now()
	from := windowStart
	if from.Before(now) {
		from = now
	}
	starts := occurrencesBetween(rule, from, windowStart.AddDate(0, 0, totalDays))

	var slots []*model.Slot
	created := 0
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		slots = slots[:0]
		created = 0
		for _, start := range starts {
			slot := slotFromRule(rule, start)
			ok, err := tx.Slots().Ensure(ctx, slot)
			if err != nil {
				return fmt.Errorf("ensure slot at %s: %w", start, err)
			}
			if ok {
				created++
			}
			slots = append(slots, slot)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expand rule %d: %w", rule.ID, err)
	}

	if created > 0 {
		s.logger.Info("Rule expanded",
			zap.Int64("rule_id", rule.ID),
			zap.Int("created", created),
			zap.Int("total", len(slots)),
		)
	}
	return slots, nil
}

// GenerateSlotsForAllRules expands every active rule. A failing rule is logged and skipped.
func (s *SlotService) GenerateSlotsForAllRules(ctx context.Context, days int) (int, error) {
	rules, err := s.store.Read().Rules().ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active rules: %w", err)
	}

	now := s.policy.now()
	total := 0
	for _, rule := range rules {
		slots, err := s.ExpandRule(ctx, rule, now, days)
		if err != nil {
			s.logger.Warn("Failed to expand rule",
				zap.Int64("rule_id", rule.ID),
				zap.Error(err),
			)
			continue
		}
		total += len(slots)
	}

	s.logger.Info("Rule expansion pass finished",
		zap.Int("rules", len(rules)),
		zap.Int("slots", total),
	)
	return total, nil
}

// FindOrCreateNextSlot returns the next free slot of a rule after from, minting it if needed.
func (s *SlotService) FindOrCreateNextSlot(ctx context.Context, ruleID int64, from time.Time) (*model.Slot, error) {
	var slot *model.Slot
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		var err error
		slot, err = findOrCreateNextSlotTx(ctx, tx, ruleID, from)
		return err
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func checkReservable(slot *model.Slot, learnerID int64, now time.Time) error {
	switch {
	case slot.Mode != model.SlotModeOneTime:
		return model.Errorf(model.ErrSlotUnavailable, "slot %d is sold by subscription", slot.ID)
	case slot.Status != model.SlotStatusAvailable:
		return model.ErrSlotUnavailable
	case !slot.StartTime.After(now):
		return model.Errorf(model.ErrSlotUnavailable, "slot %d already started", slot.ID)
	case slot.HostID == learnerID:
		return model.Errorf(model.ErrBadRequest, "cannot book your own slot")
	}
	return nil
}

// ReserveOneTimeSlot opens a checkout for the slot: a PENDING booking, the RESERVED slot and
// a CREATED payment tied to a fresh gateway order. The order is created before the
// transaction; if the slot is lost meanwhile the unpaid order is simply abandoned.
func (s *SlotService) ReserveOneTimeSlot(ctx context.Context, slotID, learnerID int64) (*model.Booking, *model.Payment, error) {
	ctx, span := tracer.Start(ctx, "slots.reserve_one_time")
	defer span.End()

	now := s.policy.now()

	slot, err := s.store.Read().Slots().GetByID(ctx, slotID)
	if err != nil {
		return nil, nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, nil, model.Errorf(model.ErrNotFound, "slot %d not found", slotID)
	}
	if err := checkReservable(slot, learnerID, now); err != nil {
		return nil, nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   slot.Price,
		Currency: s.policy.Currency,
		Receipt:  uuid.NewString(),
		Notes: map[string]string{
			"slot_id":    strconv.FormatInt(slot.ID, 10),
			"learner_id": strconv.FormatInt(learnerID, 10),
		},
	})
	if err != nil {
		return nil, nil, model.Wrap(model.ErrGatewayUnavailable, err)
	}

	var booking *model.Booking
	var payment *model.Payment
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		locked, err := tx.Slots().GetByIDForUpdate(ctx, slotID)
		if err != nil {
			return fmt.Errorf("lock slot: %w", err)
		}
		if locked == nil {
			return model.Errorf(model.ErrNotFound, "slot %d not found", slotID)
		}
		if err := checkReservable(locked, learnerID, now); err != nil {
			return err
		}

		booking, err = reserveSlotTx(ctx, tx, locked, learnerID, nil, s.policy)
		if err != nil {
			return err
		}

		payment = &model.Payment{
			BookingID:       &booking.ID,
			Provider:        ProviderRazorpay,
			ProviderOrderID: &order.ID,
			Amount:          locked.Price,
			Currency:        s.policy.Currency,
			Status:          model.PaymentStatusCreated,
			HoldExpiresAt:   ptr(now.Add(s.policy.HoldWindow)),
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrSlotUnavailable) {
			s.logger.Info("Slot taken before checkout opened",
				zap.Int64("slot_id", slotID),
				zap.String("order_id", order.ID),
			)
		}
		return nil, nil, err
	}

	s.logger.Info("Slot reserved",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("learner_id", learnerID),
		zap.Int64("slot_id", slotID),
		zap.String("order_id", order.ID),
	)
	return booking, payment, nil
}

// SlotInput describes an ad hoc slot.
type SlotInput struct {
	StartTime       time.Time
	DurationMinutes int
	Price           int64
}

// CreateSlot publishes an ad hoc ONE_TIME slot outside any rule.
func (s *SlotService) CreateSlot(ctx context.Context, principal model.Principal, in SlotInput) (*model.Slot, error) {
	if !principal.IsHost() {
		return nil, model.Errorf(model.ErrForbidden, "only hosts can publish slots")
	}
	if in.DurationMinutes <= 0 || in.Price < 0 {
		return nil, model.Errorf(model.ErrBadRequest, "invalid duration or price")
	}
	if !in.StartTime.After(s.policy.now()) {
		return nil, model.Errorf(model.ErrBadRequest, "slot must start in the future")
	}

	start := in.StartTime.UTC()
	slot := &model.Slot{
		HostID:          principal.ID,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(in.DurationMinutes) * time.Minute),
		DurationMinutes: in.DurationMinutes,
		Price:           in.Price,
		Mode:            model.SlotModeOneTime,
		Status:          model.SlotStatusAvailable,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		return tx.Slots().Create(ctx, slot)
	})
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.logger.Info("Ad hoc slot created", zap.Int64("slot_id", slot.ID), zap.Int64("host_id", slot.HostID))
	return slot, nil
}

// BlockSlot closes an AVAILABLE slot. Blocking an already blocked slot is a no-op.
func (s *SlotService) BlockSlot(ctx context.Context, principal model.Principal, slotID int64) (*model.Slot, error) {
	return s.setBlocked(ctx, principal, slotID, true)
}

// UnblockSlot reopens a BLOCKED slot.
func (s *SlotService) UnblockSlot(ctx context.Context, principal model.Principal, slotID int64) (*model.Slot, error) {
	return s.setBlocked(ctx, principal, slotID, false)
}

func (s *SlotService) setBlocked(ctx context.Context, principal model.Principal, slotID int64, block bool) (*model.Slot, error) {
	from, to := model.SlotStatusAvailable, model.SlotStatusBlocked
	if !block {
		from, to = to, from
	}

	var slot *model.Slot
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		var err error
		slot, err = tx.Slots().GetByIDForUpdate(ctx, slotID)
		if err != nil {
			return fmt.Errorf("lock slot: %w", err)
		}
		if slot == nil {
			return model.Errorf(model.ErrNotFound, "slot %d not found", slotID)
		}
		if slot.HostID != principal.ID {
			return model.ErrForbidden
		}
		switch slot.Status {
		case to:
			return nil
		case from:
			if err := tx.Slots().UpdateStatus(ctx, slot.ID, to); err != nil {
				return err
			}
			slot.Status = to
			return nil
		default:
			return model.Errorf(model.ErrSlotUnavailable, "slot %d is %s", slot.ID, slot.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (s *SlotService) ListHostSlots(ctx context.Context, hostID int64, from, to time.Time) ([]*model.Slot, error) {
	return s.store.Read().Slots().ListByHost(ctx, hostID, from, to)
}
