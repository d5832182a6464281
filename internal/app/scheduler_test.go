package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/gateway/gatewaytest"
	"github.com/Freeeeeet/mentorbook/internal/ledger/ledgertest"
	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/service"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	acquired []string
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released = append(l.released, key)
	}, true, nil
}

func newTestScheduler(t *testing.T, locker Locker) (*Scheduler, *ledgertest.Store) {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := ledgertest.New()
	store.Now = func() time.Time { return now }
	gw := gatewaytest.New()
	logger := zap.NewNop()
	policy := service.DefaultPolicy()
	policy.Now = func() time.Time { return now }

	slots := service.NewSlotService(store, gw, policy, logger)
	bookings := service.NewBookingService(store, slots, gw, service.NopDispatcher{}, policy, logger)
	subs := service.NewSubscriptionService(store, gw, service.NopDispatcher{}, policy, logger)
	sweeper := service.NewSweeper(store, bookings, subs, service.NopDispatcher{}, policy, logger)

	host := store.AddUser(model.User{Email: "host@example.com", Role: model.RoleHost, Timezone: "UTC"})
	store.AddRule(model.AvailabilityRule{
		HostID:          host.ID,
		Weekday:         int(time.Monday),
		StartHour:       18,
		DurationMinutes: 60,
		Price:           1200,
		Mode:            model.SlotModeOneTime,
		Timezone:        "UTC",
		IsActive:        true,
	})

	cfg := SchedulerConfig{SweepInterval: time.Hour, ExpansionInterval: time.Hour, ExpansionDays: 28}
	return NewScheduler(sweeper, slots, locker, cfg, logger), store
}

func TestScheduler_RunLocked(t *testing.T) {
	ctx := context.Background()

	t.Run("GivenNoLocker_ThenJobRuns", func(t *testing.T) {
		s, _ := newTestScheduler(t, nil)
		runs := 0

		s.runLocked(ctx, "sweep", time.Minute, func(context.Context) error { runs++; return nil })

		assert.Equal(t, 1, runs)
	})

	t.Run("GivenLockFree_ThenJobRunsAndReleases", func(t *testing.T) {
		locker := &fakeLocker{}
		s, _ := newTestScheduler(t, locker)
		runs := 0

		s.runLocked(ctx, "sweep", time.Minute, func(context.Context) error { runs++; return errors.New("boom") })

		assert.Equal(t, 1, runs)
		assert.Equal(t, []string{"sweep"}, locker.acquired)
		assert.Equal(t, []string{"sweep"}, locker.released)
	})

	t.Run("GivenLockHeldElsewhere_ThenSkipped", func(t *testing.T) {
		locker := &fakeLocker{held: map[string]bool{"sweep": true}}
		s, _ := newTestScheduler(t, locker)
		runs := 0

		s.runLocked(ctx, "sweep", time.Minute, func(context.Context) error { runs++; return nil })

		assert.Zero(t, runs)
		assert.Empty(t, locker.released)
	})

	t.Run("GivenLockerDown_ThenSkipped", func(t *testing.T) {
		locker := &fakeLocker{err: errors.New("connection refused")}
		s, _ := newTestScheduler(t, locker)
		runs := 0

		s.runLocked(ctx, "sweep", time.Minute, func(context.Context) error { runs++; return nil })

		assert.Zero(t, runs)
	})
}

func TestScheduler_RunExpansion(t *testing.T) {
	s, store := newTestScheduler(t, nil)

	require.NoError(t, s.RunExpansion(context.Background()))
	assert.Len(t, store.Slots(), 4)

	require.NoError(t, s.RunExpansion(context.Background()))
	assert.Len(t, store.Slots(), 4, "expansion is idempotent")
}

func TestScheduler_StartStopsWithContext(t *testing.T) {
	locker := &fakeLocker{}
	s, store := newTestScheduler(t, locker)
	ctx, cancel := context.WithCancel(context.Background())

	s.Start(ctx)
	require.Eventually(t, func() bool {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		return len(locker.released) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Len(t, store.Slots(), 4)
}
