package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mivahub/mivahub-backend/api/routes"
	"github.com/mivahub/mivahub-backend/internal/dispatch"
	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/internal/materials"
	"github.com/mivahub/mivahub-backend/internal/plans"
	"github.com/mivahub/mivahub-backend/internal/quota"
	"github.com/mivahub/mivahub-backend/internal/results"
	"github.com/mivahub/mivahub-backend/internal/status"
	"github.com/mivahub/mivahub-backend/pkg/bootstrap"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
	"github.com/mivahub/mivahub-backend/pkg/worker"
)

func main() {
	proc := bootstrap.Start("api")
	defer proc.Close()
	cfg, logg, ctx := proc.Config, proc.Logger, proc.Ctx

	dbClient := proc.Database()
	redisClient := proc.Redis()

	store, err := newObjectStore(ctx, cfg, logg)
	proc.Check("failed to bootstrap object storage", err)

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	if err := dbClient.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "db pool metrics unavailable")
	}
	outboxService := outbox.NewWriter(outbox.NewRepository(dbClient.DB()), logg)

	planService, err := plans.NewService(plans.ServiceParams{
		Repo:      plans.NewRepository(dbClient.DB()),
		CacheSize: cfg.Cache.PlanCacheSize,
		CacheTTL:  cfg.Cache.PlanCacheTTL,
	})
	proc.Check("failed to create plans service", err)

	quotaService, err := quota.NewService(quota.ServiceParams{
		Repo:       quota.NewRepository(dbClient.DB()),
		Plans:      planService,
		Logger:     logg,
		Metrics:    pipelineMetrics,
		UpgradeURL: cfg.Quota.UpgradeURL,
	})
	proc.Check("failed to create quota service", err)

	ledger, err := jobs.NewLedger(jobs.LedgerParams{
		DB:      dbClient,
		Repo:    jobs.NewRepository(dbClient.DB()),
		Outbox:  outboxService,
		Logger:  logg,
		Metrics: pipelineMetrics,
	})
	proc.Check("failed to create job ledger", err)

	workerClient, err := worker.NewClient(cfg.Jobs.WorkerBaseURL,
		worker.WithTimeout(cfg.Jobs.DispatchTimeout),
		worker.WithToken(cfg.Jobs.WorkerToken),
	)
	proc.Check("failed to create worker client", err)

	dispatcher, err := dispatch.New(dispatch.Params{
		Worker:  workerClient,
		Ledger:  ledger,
		Logger:  logg,
		Metrics: pipelineMetrics,
		Timeout: cfg.Jobs.DispatchTimeout,
	})
	proc.Check("failed to create dispatcher", err)

	materialsRepo := materials.NewRepository(dbClient.DB())
	orchestrator, err := materials.NewOrchestrator(materials.OrchestratorParams{
		DB:              dbClient,
		Repo:            materialsRepo,
		Quota:           quotaService,
		Store:           store,
		Ledger:          ledger,
		Dispatcher:      dispatcher,
		Outbox:          outboxService,
		Logger:          logg,
		UploadUsageType: cfg.Quota.UploadUsageType,
		UpgradeURL:      cfg.Quota.UpgradeURL,
		Semester:        cfg.Academic.CurrentSemester,
		MaxUploadBytes:  cfg.Storage.MaxUploadBytes(),
	})
	proc.Check("failed to create upload orchestrator", err)

	lister, err := materials.NewLister(materialsRepo)
	proc.Check("failed to create material lister", err)

	observer, err := status.NewObserver(status.Params{
		Ledger:     ledger,
		Materials:  materialsRepo,
		StaleAfter: cfg.Jobs.StaleAfter,
	})
	proc.Check("failed to create status observer", err)

	applier, err := results.NewApplier(ledger)
	proc.Check("failed to create result applier", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":    addr,
		"storage": cfg.Storage.Backend,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Storage:      store,
			Gatherer:     prometheus.DefaultGatherer,
			Quota:        quotaService,
			Plans:        planService,
			Orchestrator: orchestrator,
			Materials:    lister,
			Status:       observer,
			Results:      applier,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			proc.Fatal("api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown incomplete", err)
		}
	}
}
