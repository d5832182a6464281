package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

type repos struct {
	s  *Store
	tx *data // nil outside a transaction
}

// use returns the data set to operate on and a release func.
func (r *repos) use() (*data, func()) {
	if r.tx != nil {
		return r.tx, func() {}
	}
	r.s.dataMu.Lock()
	return r.s.data, r.s.dataMu.Unlock
}

func (r *repos) Slots() ledger.SlotRepository                 { return slotRepo{r} }
func (r *repos) Rules() ledger.RuleRepository                 { return ruleRepo{r} }
func (r *repos) Bookings() ledger.BookingRepository           { return bookingRepo{r} }
func (r *repos) Payments() ledger.PaymentRepository           { return paymentRepo{r} }
func (r *repos) Subscriptions() ledger.SubscriptionRepository { return subscriptionRepo{r} }
func (r *repos) Disputes() ledger.DisputeRepository           { return disputeRepo{r} }
func (r *repos) Payouts() ledger.PayoutRepository             { return payoutRepo{r} }
func (r *repos) Conversations() ledger.ConversationRepository { return conversationRepo{r} }
func (r *repos) Events() ledger.ProviderEventRepository       { return eventRepo{r} }
func (r *repos) Users() ledger.UserRepository                 { return userRepo{r} }

func sortedValues[V any](m map[int64]V) []V {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func tokenKey(userID int64, provider string) string {
	return strconv.FormatInt(userID, 10) + "/" + provider
}

// --- slots ---

type slotRepo struct{ r *repos }

func (x slotRepo) Create(ctx context.Context, slot *model.Slot) error {
	d, done := x.r.use()
	defer done()
	if err := x.r.s.fault("slots.create"); err != nil {
		return err
	}
	return x.insert(d, slot)
}

func (x slotRepo) insert(d *data, slot *model.Slot) error {
	if slot.RuleID != nil {
		if _, ok := findSlot(d, *slot.RuleID, slot.StartTime); ok {
			return ledger.ErrConflict
		}
	}
	now := x.r.s.Now()
	slot.ID = d.nextID()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	d.slots[slot.ID] = *slot
	return nil
}

func findSlot(d *data, ruleID int64, start time.Time) (model.Slot, bool) {
	for _, s := range d.slots {
		if s.RuleID != nil && *s.RuleID == ruleID && s.StartTime.Equal(start) {
			return s, true
		}
	}
	return model.Slot{}, false
}

func (x slotRepo) Ensure(ctx context.Context, slot *model.Slot) (bool, error) {
	d, done := x.r.use()
	defer done()
	if err := x.r.s.fault("slots.ensure"); err != nil {
		return false, err
	}
	if slot.RuleID != nil {
		if existing, ok := findSlot(d, *slot.RuleID, slot.StartTime); ok {
			*slot = existing
			return false, nil
		}
	}
	if err := x.insert(d, slot); err != nil {
		return false, err
	}
	return true, nil
}

func (x slotRepo) GetByID(ctx context.Context, id int64) (*model.Slot, error) {
	d, done := x.r.use()
	defer done()
	s, ok := d.slots[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (x slotRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Slot, error) {
	return x.GetByID(ctx, id)
}

func (x slotRepo) NextAvailableForRule(ctx context.Context, ruleID int64, from time.Time) (*model.Slot, error) {
	d, done := x.r.use()
	defer done()
	var best *model.Slot
	for _, s := range d.slots {
		if s.RuleID == nil || *s.RuleID != ruleID || s.Status != model.SlotStatusAvailable || !s.StartTime.After(from) {
			continue
		}
		if best == nil || s.StartTime.Before(best.StartTime) {
			best = ptr(s)
		}
	}
	return best, nil
}

func (x slotRepo) ListByHost(ctx context.Context, hostID int64, from, to time.Time) ([]*model.Slot, error) {
	d, done := x.r.use()
	defer done()
	var out []*model.Slot
	for _, s := range sortedValues(d.slots) {
		if s.HostID == hostID && !s.StartTime.Before(from) && s.StartTime.Before(to) {
			out = append(out, ptr(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (x slotRepo) UpdateStatus(ctx context.Context, id int64, status model.SlotStatus) error {
	d, done := x.r.use()
	defer done()
	if err := x.r.s.fault("slots.update_status"); err != nil {
		return err
	}
	s, ok := d.slots[id]
	if !ok {
		return fmt.Errorf("slot %d not found", id)
	}
	s.Status = status
	s.UpdatedAt = x.r.s.Now()
	d.slots[id] = s
	return nil
}

func (x slotRepo) DeleteFreeByRule(ctx context.Context, ruleID int64, from time.Time) (int64, error) {
	d, done := x.r.use()
	defer done()
	referenced := map[int64]bool{}
	for _, b := range d.bookings {
		referenced[b.SlotID] = true
	}
	var n int64
	for id, s := range d.slots {
		if s.RuleID == nil || *s.RuleID != ruleID || s.Status != model.SlotStatusAvailable {
			continue
		}
		if s.StartTime.Before(from) || referenced[id] {
			continue
		}
		delete(d.slots, id)
		n++
	}
	return n, nil
}

// --- rules ---

type ruleRepo struct{ r *repos }

func (x ruleRepo) Create(ctx context.Context, rule *model.AvailabilityRule) error {
	d, done := x.r.use()
	defer done()
	now := x.r.s.Now()
	rule.ID = d.nextID()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	d.rules[rule.ID] = *rule
	return nil
}

func (x ruleRepo) GetByID(ctx context.Context, id int64) (*model.AvailabilityRule, error) {
	d, done := x.r.use()
	defer done()
	v, ok := d.rules[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (x ruleRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.AvailabilityRule, error) {
	return x.GetByID(ctx, id)
}

func (x ruleRepo) Update(ctx context.Context, rule *model.AvailabilityRule) error {
	d, done := x.r.use()
	defer done()
	if _, ok := d.rules[rule.ID]; !ok {
		return fmt.Errorf("rule %d not found", rule.ID)
	}
	rule.UpdatedAt = x.r.s.Now()
	d.rules[rule.ID] = *rule
	return nil
}

func (x ruleRepo) Deactivate(ctx context.Context, id int64) error {
	d, done := x.r.use()
	defer done()
	v, ok := d.rules[id]
	if !ok {
		return fmt.Errorf("rule %d not found", id)
	}
	v.IsActive = false
	v.UpdatedAt = x.r.s.Now()
	d.rules[id] = v
	return nil
}

func (x ruleRepo) ListActive(ctx context.Context) ([]*model.AvailabilityRule, error) {
	d, done := x.r.use()
	defer done()
	var out []*model.AvailabilityRule
	for _, v := range sortedValues(d.rules) {
		if v.IsActive {
			out = append(out, ptr(v))
		}
	}
	return out, nil
}

func (x ruleRepo) HasLockedSlots(ctx context.Context, ruleID int64) (bool, error) {
	d, done := x.r.use()
	defer done()
	for _, s := range d.slots {
		if s.RuleID != nil && *s.RuleID == ruleID && s.Locked() {
			return true, nil
		}
	}
	return false, nil
}

// --- bookings ---

type bookingRepo struct{ r *repos }

func (x bookingRepo) Create(ctx context.Context, b *model.Booking) error {
	d, done := x.r.use()
	defer done()
	if err := x.r.s.fault("bookings.create"); err != nil {
		return err
	}
	for _, other := range d.bookings {
		if other.SlotID == b.SlotID {
			return ledger.ErrConflict
		}
	}
	now := x.r.s.Now()
	b.ID = d.nextID()
	b.CreatedAt = now
	b.UpdatedAt = now
	d.bookings[b.ID] = *b
	return nil
}

func (x bookingRepo) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	d, done := x.r.use()
	defer done()
	v, ok := d.bookings[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (x bookingRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	return x.GetByID(ctx, id)
}

func (x bookingRepo) GetBySlotID(ctx context.Context, slotID int64) (*model.Booking, error) {
	d, done := x.r.use()
	defer done()
	for _, v := range d.bookings {
		if v.SlotID == slotID {
			return ptr(v), nil
		}
	}
	return nil, nil
}

func (x bookingRepo) Delete(ctx context.Context, id int64) error {
	d, done := x.r.use()
	defer done()
	delete(d.bookings, id)
	for pid, p := range d.payments {
		if p.BookingID != nil && *p.BookingID == id {
			p.BookingID = nil
			d.payments[pid] = p
		}
	}
	for sid, s := range d.subscriptions {
		if s.CurrentBookingID != nil && *s.CurrentBookingID == id {
			s.CurrentBookingID = nil
			d.subscriptions[sid] = s
		}
	}
	return nil
}

func (x bookingRepo) UpdateStatus(ctx context.Context, id int64, status model.BookingStatus, reason *string) error {
	d, done := x.r.use()
	defer done()
	if err := x.r.s.fault("bookings.update_status"); err != nil {
		return err
	}
	v, ok := d.bookings[id]
	if !ok {
		return fmt.Errorf("booking %d not found", id)
	}
	v.Status = status
	if reason != nil {
		v.CancelReason = reason
	}
	v.UpdatedAt = x.r.s.Now()
	d.bookings[id] = v
	return nil
}

func (x bookingRepo) SetMeetingLink(ctx context.Context, id int64, link string) error {
	d, done := x.r.use()
	defer done()
	v, ok := d.bookings[id]
	if !ok {
		return fmt.Errorf("booking %d not found", id)
	}
	v.MeetingLink = &link
	d.bookings[id] = v
	return nil
}

func (x bookingRepo) ListByUser(ctx context.Context, userID int64) ([]*model.Booking, error) {
	d, done := x.r.use()
	defer done()
	var out []*model.Booking
	for _, v := range sortedValues(d.bookings) {
		if v.IsParty(userID) {
			out = append(out, ptr(v))
		}
	}
	return out, nil
}

// --- payments ---

type paymentRepo struct{ r *repos }

func paymentIDTaken(d *data, p *model.Payment) bool {
	if p.ProviderPaymentID == nil {
		return false
	}
	for _, other := range d.payments {
		if other.ID != p.ID && other.ProviderPaymentID != nil && *other.ProviderPaymentID == *p.ProviderPaymentID {
			return true
		}
	}
	return false
}

func (x paymentRepo) Create(ctx context.Context, p *model.Payment) error {
	d, done := x.r.use()
	defer done()
	if err := x.r.s.fault("payments.create"); err != nil {
		return err
	}
	if paymentIDTaken(d, p) {
		return ledger.ErrConflict
	}
	now := x.r.s.Now()
	p.ID = d.nextID()
	p.CreatedAt = now
	p.UpdatedAt = now
	d.payments[p.ID] = *p
	return nil
}

func (x paymentRepo) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	d, done := x.r.use()
	defer done()
	v, ok := d.payments[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (x paymentRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Payment, error) {
	return x.GetByID(ctx, id)
}

func (x paymentRepo) GetByBookingForUpdate(ctx context.Context, bookingID int64) (*model.Payment, error) {
	d, done := x.r.use()
	defer done()
	var found *model.Payment
	for _, v := range sortedValues(d.payments) {
		if v.BookingID != nil && *v.BookingID == bookingID {
			found = ptr(v)
		}
	}
	return found, nil
}

func (x paymentRepo) FindByProviderRefForUpdate(ctx context.Context, paymentID, orderID string) (*model.Payment, error) {
	d, done := x.r.use()
	defer done()
	all := sortedValues(d.payments)
	if paymentID != "" {
		for _, v := range all {
			if v.ProviderPaymentID != nil && *v.ProviderPaymentID == paymentID {
				return ptr(v), nil
			}
		}
	}
	if orderID != "" {
		var found *model.Payment
		for _, v := range all {
			if v.ProviderOrderID != nil && *v.ProviderOrderID == orderID {
				found = ptr(v)
			}
		}
		return found, nil
	}
	return nil, nil
}

func (x paymentRepo) Update(ctx context.Context, p *model.Payment) error {
	d, done := x.r.use()
	defer done()
	if err := x.r.s.fault("payments.update"); err != nil {
		return err
	}
	old, ok := d.payments[p.ID]
	if !ok {
		return fmt.Errorf("payment %d not found", p.ID)
	}
	if paymentIDTaken(d, p) {
		return ledger.ErrConflict
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = x.r.s.Now()
	d.payments[p.ID] = *p
	return nil
}

func (x paymentRepo) DeleteByBooking(ctx context.Context, bookingID int64) (int64, error) {
	d, done := x.r.use()
	defer done()
	var n int64
	for id, v := range d.payments {
		if v.BookingID != nil && *v.BookingID == bookingID && v.Status != model.PaymentStatusCaptured {
			delete(d.payments, id)
			n++
		}
	}
	return n, nil
}

func (x paymentRepo) ListAuthorizedDue(ctx context.Context, now time.Time) ([]*model.Payment, error) {
	d, done := x.r.use()
	defer done()
	var out []*model.Payment
	for _, v := range sortedValues(d.payments) {
		if v.Status == model.PaymentStatusAuthorized && v.ScheduledCaptureAt != nil && !v.ScheduledCaptureAt.After(now) {
			out = append(out, ptr(v))
		}
	}
	return out, nil
}

func (x paymentRepo) ListCreatedExpired(ctx context.Context, now time.Time) ([]*model.Payment, error) {
	d, done := x.r.use()
	defer done()
	var out []*model.Payment
	for _, v := range sortedValues(d.payments) {
		if v.Status == model.PaymentStatusCreated && v.HoldExpiresAt != nil && !v.HoldExpiresAt.After(now) {
			out = append(out, ptr(v))
		}
	}
	return out, nil
}

// --- subscriptions ---

type subscriptionRepo struct{ r *repos }

func subscriptionConflict(d *data, sub *model.Subscription) bool {
	for _, other := range d.subscriptions {
		if other.ID == sub.ID {
			continue
		}
		if sub.Live() && other.Live() && other.RuleID == sub.RuleID {
			return true
		}
		if sub.ProviderSubscriptionID != nil && other.ProviderSubscriptionID != nil &&
			*sub.ProviderSubscriptionID == *other.ProviderSubscriptionID {
			return true
		}
	}
	return false
}

func (x subscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	d, done := x.r.use()
	defer done()
	if subscriptionConflict(d, sub) {
		return ledger.ErrConflict
	}
	now := x.r.s.Now()
	sub.ID = d.nextID()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	d.subscriptions[sub.ID] = *sub
	return nil
}

func (x subscriptionRepo) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	d, done := x.r.use()
	defer done()
	v, ok := d.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (x subscriptionRepo) GetByIDForUpdate(ctx context.Context, id int64) (*model.Subscription, error) {
	return x.GetByID(ctx, id)
}

func (x subscriptionRepo) GetByProviderIDForUpdate(ctx context.Context, providerID string) (*model.Subscription, error) {
	d, done := x.r.use()
	defer done()
	for _, v := range d.subscriptions {
		if v.ProviderSubscriptionID != nil && *v.ProviderSubscriptionID == providerID {
			return ptr(v), nil
		}
	}
	return nil, nil
}

func (x subscriptionRepo) GetLiveByRule(ctx context.Context, ruleID int64) (*model.Subscription, error) {
	d, done := x.r.use()
	defer done()
	for _, v := range d.subscriptions {
		if v.RuleID == ruleID && v.Live() {
			return ptr(v), nil
		}
	}
	return nil, nil
}

func (x subscriptionRepo) Update(ctx context.Context, sub *model.Subscription) error {
	d, done := x.r.use()
	defer done()
	old, ok := d.subscriptions[sub.ID]
	if !ok {
		return fmt.Errorf("subscription %d not found", sub.ID)
	}
	if subscriptionConflict(d, sub) {
		return ledger.ErrConflict
	}
	sub.CreatedAt = old.CreatedAt
	sub.UpdatedAt = x.r.s.Now()
	d.subscriptions[sub.ID] = *sub
	return nil
}

func (x subscriptionRepo) ListPausedDue(ctx context.Context, now time.Time) ([]*model.Subscription, error) {
	d, done := x.r.use()
	defer done()
	var out []*model.Subscription
	for _, v := range sortedValues(d.subscriptions) {
		if v.Status == model.SubscriptionStatusPaused && v.PauseUntil != nil && !v.PauseUntil.After(now) {
			out = append(out, ptr(v))
		}
	}
	return out, nil
}

func (x subscriptionRepo) ListCheckoutExpired(ctx context.Context, createdBefore, startsBefore time.Time) ([]*model.Subscription, error) {
	d, done := x.r.use()
	defer done()
	var out []*model.Subscription
	for _, v := range sortedValues(d.subscriptions) {
		if v.Status != model.SubscriptionStatusCreated {
			continue
		}
		expired := !v.CreatedAt.After(createdBefore)
		if v.CurrentBookingID != nil {
			if b, ok := d.bookings[*v.CurrentBookingID]; ok && b.Status == model.BookingStatusPending && !b.StartTime.After(startsBefore) {
				expired = true
			}
		}
		if expired {
			out = append(out, ptr(v))
		}
	}
	return out, nil
}

// --- disputes, payouts, conversations, events, users ---

type disputeRepo struct{ r *repos }

func (x disputeRepo) Create(ctx context.Context, v *model.Dispute) error {
	d, done := x.r.use()
	defer done()
	v.ID = d.nextID()
	v.CreatedAt = x.r.s.Now()
	d.disputes[v.ID] = *v
	return nil
}

type payoutRepo struct{ r *repos }

func (x payoutRepo) Create(ctx context.Context, v *model.Payout) error {
	d, done := x.r.use()
	defer done()
	if err := x.r.s.fault("payouts.create"); err != nil {
		return err
	}
	for _, other := range d.payouts {
		if other.BookingID == v.BookingID {
			return ledger.ErrConflict
		}
	}
	v.ID = d.nextID()
	v.CreatedAt = x.r.s.Now()
	d.payouts[v.ID] = *v
	return nil
}

func (x payoutRepo) GetByBooking(ctx context.Context, bookingID int64) (*model.Payout, error) {
	d, done := x.r.use()
	defer done()
	for _, v := range d.payouts {
		if v.BookingID == bookingID {
			return ptr(v), nil
		}
	}
	return nil, nil
}

type conversationRepo struct{ r *repos }

func (x conversationRepo) Ensure(ctx context.Context, hostID, learnerID, bookingID int64) (*model.Conversation, error) {
	d, done := x.r.use()
	defer done()
	for id, v := range d.conversations {
		if v.HostID == hostID && v.LearnerID == learnerID {
			v.LastBookingID = &bookingID
			d.conversations[id] = v
			return ptr(v), nil
		}
	}
	v := model.Conversation{
		ID:            d.nextID(),
		HostID:        hostID,
		LearnerID:     learnerID,
		LastBookingID: &bookingID,
		CreatedAt:     x.r.s.Now(),
	}
	d.conversations[v.ID] = v
	return &v, nil
}

type eventRepo struct{ r *repos }

func (x eventRepo) Record(ctx context.Context, ev *model.ProviderEvent) (bool, error) {
	d, done := x.r.use()
	defer done()
	key := ev.Provider + "/" + ev.EventKey
	if _, ok := d.events[key]; ok {
		return false, nil
	}
	ev.ID = d.nextID()
	ev.ReceivedAt = x.r.s.Now()
	d.events[key] = *ev
	return true, nil
}

type userRepo struct{ r *repos }

func (x userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	d, done := x.r.use()
	defer done()
	v, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (x userRepo) GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	d, done := x.r.use()
	defer done()
	for _, v := range d.users {
		if v.TelegramChatID != nil && *v.TelegramChatID == chatID {
			return ptr(v), nil
		}
	}
	return nil, nil
}

func (x userRepo) SetTelegramChatID(ctx context.Context, userID, chatID int64) error {
	d, done := x.r.use()
	defer done()
	v, ok := d.users[userID]
	if !ok {
		return fmt.Errorf("user %d not found", userID)
	}
	for id, other := range d.users {
		if id != userID && other.TelegramChatID != nil && *other.TelegramChatID == chatID {
			other.TelegramChatID = nil
			d.users[id] = other
		}
	}
	v.TelegramChatID = &chatID
	d.users[userID] = v
	return nil
}

func (x userRepo) GetOAuthToken(ctx context.Context, userID int64, provider string) (*model.OAuthToken, error) {
	d, done := x.r.use()
	defer done()
	v, ok := d.tokens[tokenKey(userID, provider)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (x userRepo) SaveOAuthToken(ctx context.Context, t *model.OAuthToken) error {
	d, done := x.r.use()
	defer done()
	d.tokens[tokenKey(t.UserID, t.Provider)] = *t
	return nil
}
