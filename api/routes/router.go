package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rflexhq/license-server/api/controllers"
	"github.com/rflexhq/license-server/api/middleware"
	"github.com/rflexhq/license-server/internal/activations"
	"github.com/rflexhq/license-server/internal/licenses"
	"github.com/rflexhq/license-server/internal/plans"
	"github.com/rflexhq/license-server/internal/revocations"
	"github.com/rflexhq/license-server/internal/validation"
	"github.com/rflexhq/license-server/pkg/config"
	"github.com/rflexhq/license-server/pkg/db"
	"github.com/rflexhq/license-server/pkg/logger"
	"github.com/rflexhq/license-server/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	licenseService licenses.Service,
	validationService validation.Service,
	activationService activations.Service,
	revocationService revocations.Service,
	planService plans.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	validatePolicy := middleware.NewRateLimitPolicy(
		"validate",
		cfg.RateLimit.ValidateWindow,
		cfg.RateLimit.ValidateIPLimit,
		cfg.RateLimit.ValidateDeviceLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(validatePolicy, redisClient, logg)).
			Post("/validate", controllers.Validate(validationService, logg))

		r.Get("/plans", controllers.PlanList(planService, logg))

		r.Route("/licenses", func(r chi.Router) {
			r.Use(middleware.Idempotency(redisClient, logg))

			r.Post("/", controllers.LicenseIssue(licenseService, logg))
			r.Get("/", controllers.LicenseList(licenseService, logg))
			r.Route("/{licenseId}", func(r chi.Router) {
				r.Get("/", controllers.LicenseDetail(licenseService, logg))
				r.Post("/renew", controllers.LicenseRenew(licenseService, logg))
				r.Post("/revoke", controllers.LicenseRevoke(revocationService, logg))
				r.Post("/deactivate", controllers.Deactivate(activationService, logg))
				r.Get("/activations", controllers.ActivationList(activationService, logg))
			})
		})
	})

	return r
}
