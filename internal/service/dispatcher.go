package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/calendar"
	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/notify"
)

// Dispatcher runs post-commit side effects. Failures never affect the committed state.
type Dispatcher interface {
	BookingConfirmed(b *model.Booking)
	BookingCanceled(b *model.Booking)
	BookingCompleted(b *model.Booking, payout *model.Payout)
}

type CalendarClient interface {
	CreateEvent(ctx context.Context, token *model.OAuthToken, ev calendar.Event) (*calendar.CreatedEvent, *model.OAuthToken, error)
}

type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// SideEffects is the Dispatcher used in production. Any collaborator may be nil.
type SideEffects struct {
	store     ledger.Store
	calendar  CalendarClient
	notifier  Notifier
	publisher EventPublisher
	logger    *zap.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewSideEffects creates the dispatcher. Any of cal, notifier and publisher may be nil.
func NewSideEffects(store ledger.Store, cal CalendarClient, notifier Notifier, publisher EventPublisher, logger *zap.Logger) *SideEffects {
	return &SideEffects{
		store:     store,
		calendar:  cal,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		timeout:   30 * time.Second,
	}
}

// Wait blocks until in-flight side effects finish.
func (d *SideEffects) Wait() {
	d.wg.Wait()
}

func (d *SideEffects) run(name string, bookingID int64, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Side effect panicked",
					zap.String("effect", name),
					zap.Int64("booking_id", bookingID),
					zap.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (d *SideEffects) BookingConfirmed(b *model.Booking) {
	booking := *b
	d.run(notify.RoutingBookingConfirmed, booking.ID, func(ctx context.Context) {
		d.syncCalendar(ctx, &booking)
		d.notifyHost(ctx, &booking)
		d.publish(ctx, notify.RoutingBookingConfirmed, notify.NewBookingEvent(&booking, time.Now().UTC()))
	})
}

func (d *SideEffects) BookingCanceled(b *model.Booking) {
	booking := *b
	d.run(notify.RoutingBookingCanceled, booking.ID, func(ctx context.Context) {
		d.notifyHost(ctx, &booking)
		d.publish(ctx, notify.RoutingBookingCanceled, notify.NewBookingEvent(&booking, time.Now().UTC()))
	})
}

func (d *SideEffects) BookingCompleted(b *model.Booking, payout *model.Payout) {
	booking := *b
	d.run(notify.RoutingBookingCompleted, booking.ID, func(ctx context.Context) {
		d.notifyHost(ctx, &booking)
		ev := notify.NewBookingEvent(&booking, time.Now().UTC())
		if payout != nil {
			ev.PayoutAmount = ptr(payout.Amount)
		}
		d.publish(ctx, notify.RoutingBookingCompleted, ev)
	})
}

// syncCalendar creates an event for each participant with a linked calendar.
// The first Meet link obtained becomes the booking's meeting link.
func (d *SideEffects) syncCalendar(ctx context.Context, b *model.Booking) {
	if d.calendar == nil {
		return
	}
	users := d.store.Read().Users()
	link := ""
	if b.MeetingLink != nil {
		link = *b.MeetingLink
	}

	for _, userID := range []int64{b.HostID, b.LearnerID} {
		token, err := users.GetOAuthToken(ctx, userID, calendar.Provider)
		if err != nil {
			d.logger.Warn("Failed to load calendar token", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		if token == nil {
			continue
		}

		tz := "UTC"
		if u, err := users.GetByID(ctx, userID); err == nil && u != nil && u.Timezone != "" {
			tz = u.Timezone
		}

		description := fmt.Sprintf("Booking #%d", b.ID)
		if link != "" {
			description += "\nJoin: " + link
		}
		created, used, err := d.calendar.CreateEvent(ctx, token, calendar.Event{
			RequestID:   fmt.Sprintf("booking-%d-%d", b.ID, userID),
			Summary:     "Mentoring session",
			Description: description,
			Start:       b.StartTime,
			End:         b.EndTime,
			Timezone:    tz,
		})
		if err != nil {
			d.logger.Warn("Calendar sync failed",
				zap.Int64("booking_id", b.ID),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			continue
		}

		if used != nil && used.AccessToken != token.AccessToken {
			if err := users.SaveOAuthToken(ctx, used); err != nil {
				d.logger.Warn("Failed to persist refreshed token", zap.Int64("user_id", userID), zap.Error(err))
			}
		}

		if link == "" && created.MeetingLink != "" {
			link = created.MeetingLink
			if err := d.store.Read().Bookings().SetMeetingLink(ctx, b.ID, link); err != nil {
				d.logger.Warn("Failed to store meeting link", zap.Int64("booking_id", b.ID), zap.Error(err))
			}
		}
	}
}

func (d *SideEffects) notifyHost(ctx context.Context, b *model.Booking) {
	if d.notifier == nil {
		return
	}
	host, err := d.store.Read().Users().GetByID(ctx, b.HostID)
	if err != nil {
		d.logger.Warn("Failed to load host", zap.Int64("host_id", b.HostID), zap.Error(err))
		return
	}
	if host == nil || host.TelegramChatID == nil {
		return
	}

	loc, err := time.LoadLocation(host.Timezone)
	if err != nil {
		loc = time.UTC
	}
	if err := d.notifier.Send(ctx, *host.TelegramChatID, notify.HostMessage(b, loc)); err != nil {
		d.logger.Warn("Host notification failed", zap.Int64("booking_id", b.ID), zap.Error(err))
	}
}

func (d *SideEffects) publish(ctx context.Context, key string, ev notify.BookingEvent) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, key, ev); err != nil {
		d.logger.Warn("Event publish failed", zap.String("routing_key", key), zap.Int64("booking_id", ev.BookingID), zap.Error(err))
	}
}

// NopDispatcher drops all side effects.
type NopDispatcher struct{}

func (NopDispatcher) BookingConfirmed(*model.Booking)                {}
func (NopDispatcher) BookingCanceled(*model.Booking)                 {}
func (NopDispatcher) BookingCompleted(*model.Booking, *model.Payout) {}
