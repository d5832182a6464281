// Package ledgertest provides an in-memory ledger.Store for tests.
//
// Transactions are serialized and run against a copy of the data that is
// swapped in on commit, so a failing unit of work leaves nothing behind.
package ledgertest

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

type data struct {
	seq           int64
	slots         map[int64]model.Slot
	rules         map[int64]model.AvailabilityRule
	bookings      map[int64]model.Booking
	payments      map[int64]model.Payment
	subscriptions map[int64]model.Subscription
	disputes      map[int64]model.Dispute
	payouts       map[int64]model.Payout
	conversations map[int64]model.Conversation
	events        map[string]model.ProviderEvent
	users         map[int64]model.User
	tokens        map[string]model.OAuthToken
}

func newData() *data {
	return &data{
		slots:         map[int64]model.Slot{},
		rules:         map[int64]model.AvailabilityRule{},
		bookings:      map[int64]model.Booking{},
		payments:      map[int64]model.Payment{},
		subscriptions: map[int64]model.Subscription{},
		disputes:      map[int64]model.Dispute{},
		payouts:       map[int64]model.Payout{},
		conversations: map[int64]model.Conversation{},
		events:        map[string]model.ProviderEvent{},
		users:         map[int64]model.User{},
		tokens:        map[string]model.OAuthToken{},
	}
}

func (d *data) clone() *data {
	c := newData()
	c.seq = d.seq
	copyMap(c.slots, d.slots)
	copyMap(c.rules, d.rules)
	copyMap(c.bookings, d.bookings)
	copyMap(c.payments, d.payments)
	copyMap(c.subscriptions, d.subscriptions)
	copyMap(c.disputes, d.disputes)
	copyMap(c.payouts, d.payouts)
	copyMap(c.conversations, d.conversations)
	copyMap(c.events, d.events)
	copyMap(c.users, d.users)
	copyMap(c.tokens, d.tokens)
	return c
}

func copyMap[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

func (d *data) nextID() int64 {
	d.seq++
	return d.seq
}

// Store is a ledger.Store backed by maps.
type Store struct {
	txMu   sync.Mutex // serializes transactions
	dataMu sync.Mutex // guards data
	data   *data

	faultMu sync.Mutex
	faults  map[string]error

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
}

func New() *Store {
	return &Store{data: newData(), faults: map[string]error{}, Now: time.Now}
}

// FailOn makes the named operation (e.g. "payments.create") return err once.
func (s *Store) FailOn(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.dataMu.Lock()
	work := s.data.clone()
	s.dataMu.Unlock()

	if err := fn(ctx, &repos{s: s, tx: work}); err != nil {
		return err
	}

	s.dataMu.Lock()
	s.data = work
	s.dataMu.Unlock()
	return nil
}

// Read writes straight to the committed data. A write made through it while a
// transaction is open is lost when that transaction commits.
func (s *Store) Read() ledger.Repos {
	return &repos{s: s}
}

// Seed helpers write directly, outside any transaction.

func (s *Store) AddUser(u model.User) model.User {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if u.ID == 0 {
		u.ID = s.data.nextID()
	}
	s.data.users[u.ID] = u
	return u
}

func (s *Store) AddRule(r model.AvailabilityRule) model.AvailabilityRule {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if r.ID == 0 {
		r.ID = s.data.nextID()
	}
	s.data.rules[r.ID] = r
	return r
}

func (s *Store) AddSlot(sl model.Slot) model.Slot {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if sl.ID == 0 {
		sl.ID = s.data.nextID()
	}
	s.data.slots[sl.ID] = sl
	return sl
}

func (s *Store) AddToken(t model.OAuthToken) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.data.tokens[tokenKey(t.UserID, t.Provider)] = t
}

// Snapshot accessors for assertions.

func (s *Store) Slot(id int64) (model.Slot, bool) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	v, ok := s.data.slots[id]
	return v, ok
}

func (s *Store) Booking(id int64) (model.Booking, bool) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	v, ok := s.data.bookings[id]
	return v, ok
}

func (s *Store) Subscription(id int64) (model.Subscription, bool) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	v, ok := s.data.subscriptions[id]
	return v, ok
}

func (s *Store) Bookings() []model.Booking {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return sortedValues(s.data.bookings)
}

func (s *Store) Payments() []model.Payment {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return sortedValues(s.data.payments)
}

func (s *Store) Slots() []model.Slot {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return sortedValues(s.data.slots)
}

func (s *Store) Payouts() []model.Payout {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return sortedValues(s.data.payouts)
}

func (s *Store) Disputes() []model.Dispute {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return sortedValues(s.data.disputes)
}

func (s *Store) Conversations() []model.Conversation {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return sortedValues(s.data.conversations)
}

func (s *Store) Events() int {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return len(s.data.events)
}
