package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mivahub/mivahub-backend/api/controllers"
	"github.com/mivahub/mivahub-backend/api/middleware"
	"github.com/mivahub/mivahub-backend/internal/materials"
	"github.com/mivahub/mivahub-backend/internal/quota"
	"github.com/mivahub/mivahub-backend/internal/results"
	"github.com/mivahub/mivahub-backend/internal/status"
	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs. Nil services make
// their routes answer with an internal error.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Redis        *redis.Client
	Storage      controllers.Pinger
	Gatherer     prometheus.Gatherer
	Quota        quota.Service
	Plans        controllers.PlanAdmin
	Orchestrator materials.Orchestrator
	Materials    controllers.MaterialLister
	Status       status.Observer
	Results      *results.Applier
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	var idempotencyStore redis.IdempotencyStore
	uploadLimiter := middleware.RateLimit(middleware.RateLimitPolicy{}, nil, logg)
	checks := []controllers.ReadinessCheck{{Name: "db", Pinger: deps.DB}, {Name: "storage", Pinger: deps.Storage}}
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		uploadPolicy := middleware.NewRateLimitPolicy(
			"upload",
			cfg.RateLimit.UploadWindow,
			cfg.RateLimit.UploadPerIP,
			cfg.RateLimit.UploadPerUser,
		)
		uploadLimiter = middleware.RateLimit(uploadPolicy, deps.Redis, logg)
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: deps.Redis})
	}

	optionalKey := middleware.Idempotent(idempotencyStore, middleware.IdempotencyPolicy{TTL: cfg.Eventing.IdempotencyTTL}, logg)
	requiredKey := middleware.Idempotent(idempotencyStore, middleware.IdempotencyPolicy{Required: true, TTL: cfg.Eventing.IdempotencyTTL}, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, checks...))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.Ping("public"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.Ping("private"))
		r.Get("/usage", controllers.UsageSummary(deps.Quota, logg))

		r.Route("/quota", func(r chi.Router) {
			r.Post("/check", controllers.QuotaCheck(deps.Quota, logg))
			r.With(requiredKey).Post("/actions/{action}", controllers.QuotaConsumeAction(deps.Quota, cfg.Quota.UpgradeURL, logg))
		})

		r.With(uploadLimiter, optionalKey).Post("/materials", controllers.MaterialUpload(deps.Orchestrator, cfg.Storage.MaxUploadBytes(), logg))
		r.Get("/materials", controllers.ListMaterials(deps.Materials, cfg.Academic, logg))
		r.Get("/jobs/{jobId}", controllers.JobStatus(deps.Status, cfg.Academic, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.Academic, logg))
			r.Get("/ping", controllers.Ping("admin"))
			r.Get("/plans", controllers.AdminListPlans(deps.Plans, logg))
			r.Put("/plans/{planId}/limits", controllers.AdminUpdatePlanLimits(deps.Plans, logg))
			r.With(requiredKey).Post("/subscriptions", controllers.AdminCreateSubscription(deps.Plans, logg))
		})
	})

	r.Route("/api/internal/v1", func(r chi.Router) {
		r.Use(middleware.ServiceToken(cfg.Jobs.CallbackToken, logg))
		r.Post("/jobs/{jobId}/result", controllers.JobResultCallback(deps.Results, logg))
	})

	return r
}
