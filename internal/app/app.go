package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/calendar"
	"github.com/Freeeeeet/mentorbook/internal/config"
	"github.com/Freeeeeet/mentorbook/internal/controller/httpapi"
	"github.com/Freeeeeet/mentorbook/internal/controller/telegram"
	"github.com/Freeeeeet/mentorbook/internal/gateway"
	"github.com/Freeeeeet/mentorbook/internal/notify"
	"github.com/Freeeeeet/mentorbook/internal/repository"
	"github.com/Freeeeeet/mentorbook/internal/service"
)

// App holds the wired dependency graph.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	pool      *pgxpool.Pool
	redis     *redis.Client
	publisher *notify.Publisher
	effects   *service.SideEffects

	Tokens        *service.Tokens
	Users         *service.UserService
	Slots         *service.SlotService
	Bookings      *service.BookingService
	Subscriptions *service.SubscriptionService
	Reconciler    *service.Reconciler
	Sweeper       *service.Sweeper
	Scheduler     *Scheduler
	Bot           *telegram.BotController
}

// Policy maps configuration onto the service knobs.
func Policy(cfg *config.Config) service.Policy {
	p := service.DefaultPolicy()
	p.Currency = cfg.Currency
	p.HoldWindow = cfg.HoldWindow
	p.CaptureOffset = cfg.CaptureOffset
	p.CancelCutoff = cfg.CancelCutoff
	p.CommissionRate = cfg.CommissionRate
	p.PlatformFee = cfg.PlatformFee
	p.ExpansionDays = cfg.RuleExpansionDays
	return p
}

// New connects to every configured backend. Optional backends left unset are skipped.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	var err error
	a.pool, err = repository.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}
	store := repository.NewStore(a.pool)

	if !cfg.PaymentsEnabled() {
		logger.Warn("Razorpay credentials are not set; gateway calls will fail")
	}
	gw := gateway.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret, logger)

	var cal service.CalendarClient
	if cfg.GoogleClientID != "" {
		cal = calendar.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret)
	}

	var tgBot *bot.Bot
	var notifier service.Notifier
	if cfg.TelegramToken != "" {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		notifier = notify.NewTelegram(tgBot)
	}

	var publisher service.EventPublisher
	if cfg.AMQPURL != "" {
		a.publisher, err = notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		publisher = a.publisher
	}

	var locker Locker
	a.redis, err = NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	if a.redis != nil {
		locker = NewRedisLocker(a.redis)
	}

	policy := Policy(cfg)
	a.effects = service.NewSideEffects(store, cal, notifier, publisher, logger)

	a.Tokens = service.NewTokens(cfg.JWTSecret)
	a.Users = service.NewUserService(store, a.Tokens, logger)
	a.Slots = service.NewSlotService(store, gw, policy, logger)
	a.Bookings = service.NewBookingService(store, a.Slots, gw, a.effects, policy, logger)
	a.Subscriptions = service.NewSubscriptionService(store, gw, a.effects, policy, logger)
	a.Reconciler = service.NewReconciler(store, gw, a.Bookings, a.effects, policy, logger)
	a.Sweeper = service.NewSweeper(store, a.Bookings, a.Subscriptions, a.effects, policy, logger)
	a.Scheduler = NewScheduler(a.Sweeper, a.Slots, locker, SchedulerConfig{
		SweepInterval:     cfg.SweepInterval,
		ExpansionInterval: cfg.RuleExpansionInterval,
		ExpansionDays:     cfg.RuleExpansionDays,
	}, logger)

	if tgBot != nil {
		a.Bot = telegram.NewBotController(tgBot, a.Users, a.Bookings, logger)
	}
	ready = true
	return a, nil
}

// Pool exposes the database pool for migrations.
func (a *App) Pool() *pgxpool.Pool {
	return a.pool
}

// Handler builds the HTTP API.
func (a *App) Handler(ctx context.Context) http.Handler {
	return httpapi.NewRouter(ctx, httpapi.Services{
		Tokens:        a.Tokens,
		Slots:         a.Slots,
		Bookings:      a.Bookings,
		Subscriptions: a.Subscriptions,
		Reconciler:    a.Reconciler,
		Users:         a.Users,
		DB:            a.pool,
	}, httpapi.RouterOptions{
		CORSOrigins: a.cfg.CORSOrigins,
		RateRPS:     a.cfg.RateLimitRPS,
		RateBurst:   a.cfg.RateLimitBurst,
	}, a.logger)
}

// Close waits for side effects and releases connections.
func (a *App) Close() {
	if a.effects != nil {
		a.effects.Wait()
	}
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Errors while closing", zap.Error(err))
	}
}
