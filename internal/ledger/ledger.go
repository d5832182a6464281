// Package ledger defines the transactional store for slots, bookings, payments and subscriptions.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("ledger: unique constraint violated")

// Store runs units of work. Repositories returned from Read are not transactional.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
	Read() Repos
}

// Repos groups repositories bound to one transaction (or to the pool for Read).
// Getters return (nil, nil) when the row does not exist.
type Repos interface {
	Slots() SlotRepository
	Rules() RuleRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	Subscriptions() SubscriptionRepository
	Disputes() DisputeRepository
	Payouts() PayoutRepository
	Conversations() ConversationRepository
	Events() ProviderEventRepository
	Users() UserRepository
}

type SlotRepository interface {
	Create(ctx context.Context, slot *model.Slot) error
	// Ensure inserts a rule slot or loads the existing one for (rule_id, start_time).
	Ensure(ctx context.Context, slot *model.Slot) (created bool, err error)
	GetByID(ctx context.Context, id int64) (*model.Slot, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Slot, error)
	// NextAvailableForRule returns the earliest AVAILABLE slot of the rule starting after from.
	NextAvailableForRule(ctx context.Context, ruleID int64, from time.Time) (*model.Slot, error)
	ListByHost(ctx context.Context, hostID int64, from, to time.Time) ([]*model.Slot, error)
	UpdateStatus(ctx context.Context, id int64, status model.SlotStatus) error
	// DeleteFreeByRule removes future AVAILABLE slots of a rule that no booking references.
	DeleteFreeByRule(ctx context.Context, ruleID int64, from time.Time) (int64, error)
}

type RuleRepository interface {
	Create(ctx context.Context, rule *model.AvailabilityRule) error
	GetByID(ctx context.Context, id int64) (*model.AvailabilityRule, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.AvailabilityRule, error)
	Update(ctx context.Context, rule *model.AvailabilityRule) error
	// Deactivate retires the rule; existing slots and bookings keep referencing it.
	Deactivate(ctx context.Context, id int64) error
	ListActive(ctx context.Context) ([]*model.AvailabilityRule, error)
	// HasLockedSlots reports whether any slot of the rule is RESERVED or BOOKED.
	HasLockedSlots(ctx context.Context, ruleID int64) (bool, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Booking, error)
	GetBySlotID(ctx context.Context, slotID int64) (*model.Booking, error)
	Delete(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, status model.BookingStatus, reason *string) error
	SetMeetingLink(ctx context.Context, id int64, link string) error
	ListByUser(ctx context.Context, userID int64) ([]*model.Booking, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id int64) (*model.Payment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Payment, error)
	// GetByBookingForUpdate returns the most recent payment of a booking.
	GetByBookingForUpdate(ctx context.Context, bookingID int64) (*model.Payment, error)
	// FindByProviderRefForUpdate matches the provider payment id first, then the order id.
	FindByProviderRefForUpdate(ctx context.Context, providerPaymentID, providerOrderID string) (*model.Payment, error)
	Update(ctx context.Context, payment *model.Payment) error
	// DeleteByBooking removes the booking's payments that were never captured.
	DeleteByBooking(ctx context.Context, bookingID int64) (int64, error)
	ListAuthorizedDue(ctx context.Context, now time.Time) ([]*model.Payment, error)
	ListCreatedExpired(ctx context.Context, now time.Time) ([]*model.Payment, error)
}

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *model.Subscription) error
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Subscription, error)
	GetByProviderIDForUpdate(ctx context.Context, providerSubscriptionID string) (*model.Subscription, error)
	// GetLiveByRule returns the rule's subscription that is not CANCELED.
	GetLiveByRule(ctx context.Context, ruleID int64) (*model.Subscription, error)
	Update(ctx context.Context, sub *model.Subscription) error
	ListPausedDue(ctx context.Context, now time.Time) ([]*model.Subscription, error)
	// ListCheckoutExpired returns CREATED subscriptions opened at or before createdBefore,
	// or whose first booking starts at or before startsBefore.
	ListCheckoutExpired(ctx context.Context, createdBefore, startsBefore time.Time) ([]*model.Subscription, error)
}

type DisputeRepository interface {
	Create(ctx context.Context, dispute *model.Dispute) error
}

type PayoutRepository interface {
	Create(ctx context.Context, payout *model.Payout) error
	GetByBooking(ctx context.Context, bookingID int64) (*model.Payout, error)
}

type ConversationRepository interface {
	// Ensure returns the pair's thread, creating it on first contact.
	Ensure(ctx context.Context, hostID, learnerID int64, bookingID int64) (*model.Conversation, error)
}

type ProviderEventRepository interface {
	// Record stores the event; it reports false when the key was already recorded.
	Record(ctx context.Context, event *model.ProviderEvent) (bool, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)
	SetTelegramChatID(ctx context.Context, userID, chatID int64) error
	GetOAuthToken(ctx context.Context, userID int64, provider string) (*model.OAuthToken, error)
	SaveOAuthToken(ctx context.Context, token *model.OAuthToken) error
}
