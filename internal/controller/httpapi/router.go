package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/service"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Tokens        TokenVerifier
	Slots         *service.SlotService
	Bookings      *service.BookingService
	Subscriptions *service.SubscriptionService
	Reconciler    *service.Reconciler
	Users         *service.UserService
	DB            Pinger
}

type RouterOptions struct {
	CORSOrigins []string
	RateRPS     float64
	RateBurst   int
}

// NewRouter builds the API. ctx bounds background work such as limiter cleanup.
func NewRouter(ctx context.Context, svc Services, opts RouterOptions, logger *zap.Logger) http.Handler {
	health := NewHealthHandler(svc.DB)
	bookings := NewBookingHandler(svc.Bookings, logger)
	availability := NewAvailabilityHandler(svc.Slots, logger)
	subscriptions := NewSubscriptionHandler(svc.Subscriptions, logger)
	webhooks := NewWebhookHandler(svc.Reconciler, logger)
	users := NewUserHandler(svc.Users, logger)

	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(Logger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", health.Check)
	// Webhooks are not rate limited; the gateway retries aggressively.
	r.Post("/api/webhooks/razorpay", webhooks.Razorpay)

	r.Group(func(r chi.Router) {
		if opts.RateRPS > 0 {
			r.Use(NewRateLimiter(ctx, opts.RateRPS, opts.RateBurst).Middleware())
		}
		r.Get("/api/hosts/{id}/slots", availability.ListHostSlots)

		r.Group(func(r chi.Router) {
			r.Use(Auth(svc.Tokens, logger))

			r.Post("/api/bookings", bookings.Create)
			r.Get("/api/bookings", bookings.List)
			r.Get("/api/bookings/{id}", bookings.Get)
			r.Post("/api/bookings/{id}/confirm", bookings.Confirm)
			r.Post("/api/bookings/{id}/cancel", bookings.Cancel)
			r.Post("/api/bookings/{id}/complete", bookings.Complete)
			r.Post("/api/bookings/{id}/disputes", bookings.Dispute)

			r.Post("/api/rules", availability.CreateRule)
			r.Put("/api/rules/{id}", availability.UpdateRule)
			r.Delete("/api/rules/{id}", availability.DeleteRule)

			r.Post("/api/slots", availability.CreateSlot)
			r.Post("/api/slots/{id}/block", availability.BlockSlot)
			r.Post("/api/slots/{id}/unblock", availability.UnblockSlot)

			r.Post("/api/subscriptions", subscriptions.Create)
			r.Get("/api/subscriptions/{id}", subscriptions.Get)
			r.Post("/api/subscriptions/{id}/pause", subscriptions.Pause)
			r.Post("/api/subscriptions/{id}/resume", subscriptions.Resume)
			r.Post("/api/subscriptions/{id}/cancel", subscriptions.Cancel)

			r.Post("/api/me/telegram-link", users.TelegramLink)
		})
	})

	return r
}
