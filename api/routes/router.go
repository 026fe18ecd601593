package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swiftdrop/swiftdrop-backend/api/controllers"
	webhookcontrollers "github.com/swiftdrop/swiftdrop-backend/api/controllers/webhooks"
	"github.com/swiftdrop/swiftdrop-backend/api/middleware"
	"github.com/swiftdrop/swiftdrop-backend/internal/auth"
	"github.com/swiftdrop/swiftdrop-backend/internal/deliveries"
	"github.com/swiftdrop/swiftdrop-backend/internal/locations"
	"github.com/swiftdrop/swiftdrop-backend/internal/reviews"
	"github.com/swiftdrop/swiftdrop-backend/internal/verifications"
	stripewebhook "github.com/swiftdrop/swiftdrop-backend/internal/webhooks/stripe"
	"github.com/swiftdrop/swiftdrop-backend/pkg/auth/session"
	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
	"github.com/swiftdrop/swiftdrop-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Redis         redis.Pinger
	Sessions      session.AccessSessionChecker
	Auth          auth.Service
	Deliveries    deliveries.Service
	Locations     *locations.Service
	Reviews       *reviews.Service
	Verifications *verifications.Service
	StripeWebhook *stripewebhook.Service
	Metrics       prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Redis))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, cfg.Payments.StripeWebhookSecret, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(deps.Auth, logg))
		r.Post("/login", controllers.AuthLogin(deps.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
			r.Post("/otp/send", controllers.AuthSendOTP(deps.Auth, logg))
			r.Post("/otp/verify", controllers.AuthVerifyOTP(deps.Auth, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", controllers.ProfileFetch(deps.Auth, logg))
			r.Put("/me", controllers.ProfileUpdate(deps.Auth, logg))
			r.Get("/{userId}/reviews", controllers.UserReviews(deps.Reviews, logg))
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Post("/", controllers.DeliveryCreate(deps.Deliveries, logg))
			r.Get("/available", controllers.DeliveryAvailable(deps.Deliveries, logg))
			r.Get("/available/stream", controllers.DeliveryAvailableStream(deps.Deliveries, logg))
			r.Get("/mine/sender", controllers.DeliveriesForSender(deps.Deliveries, logg))
			r.Get("/mine/courier", controllers.DeliveriesForCourier(deps.Deliveries, logg))
			r.With(middleware.RequireCourierRole(logg)).
				Get("/mine/courier/earnings", controllers.DeliveryEarnings(deps.Deliveries, logg))
			r.Get("/{deliveryId}", controllers.DeliveryDetail(deps.Deliveries, logg))
			r.Post("/{deliveryId}/accept", controllers.DeliveryAccept(deps.Deliveries, logg))
			r.Post("/{deliveryId}/pickup", controllers.DeliveryPickup(deps.Deliveries, logg))
			r.Post("/{deliveryId}/transit", controllers.DeliveryTransit(deps.Deliveries, logg))
			r.Post("/{deliveryId}/complete", controllers.DeliveryComplete(deps.Deliveries, logg))
			r.Post("/{deliveryId}/cancel", controllers.DeliveryCancel(deps.Deliveries, logg))
			r.Post("/{deliveryId}/dispute", controllers.DeliveryDispute(deps.Deliveries, logg))
		})

		r.Route("/locations", func(r chi.Router) {
			r.With(middleware.RequireCourierRole(logg)).Post("/", controllers.LocationReport(deps.Locations, logg))
			r.Get("/couriers/{courierId}", controllers.CourierLocation(deps.Locations, logg))
		})

		r.Post("/reviews", controllers.ReviewCreate(deps.Reviews, logg))

		r.Route("/verifications", func(r chi.Router) {
			r.Post("/", controllers.VerificationSubmit(deps.Verifications, logg))
			r.Get("/me", controllers.VerificationMine(deps.Verifications, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin.String(), logg))
		r.Get("/stats", controllers.AdminDeliveryStats(deps.Deliveries, logg))
		r.Route("/verifications", func(r chi.Router) {
			r.Get("/", controllers.AdminVerificationQueue(deps.Verifications, logg))
			r.Post("/{userId}/approve", controllers.AdminVerificationApprove(deps.Verifications, logg))
			r.Post("/{userId}/reject", controllers.AdminVerificationReject(deps.Verifications, logg))
		})
	})

	return r
}
