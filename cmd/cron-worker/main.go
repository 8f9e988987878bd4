package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mivahub/mivahub-backend/internal/cron"
	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/internal/quota"
	"github.com/mivahub/mivahub-backend/pkg/bootstrap"
	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/db"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database()
	redisClient := proc.Redis()

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	proc.Check("failed to create cron lock", err)

	registry, err := buildRegistry(cfg, logg, dbClient, pipelineMetrics)
	proc.Check("failed to register cron jobs", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Tick:     cfg.Cron.Tick,
	})
	proc.Check("failed to create cron service", err)

	ctx := logg.WithField(proc.Ctx, "tick", cfg.Cron.Tick.String())
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Fatal("cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, pipelineMetrics *metrics.PipelineMetrics) (*cron.Registry, error) {
	staleSweep, err := cron.NewStaleJobSweep(cron.StaleJobSweepParams{
		Logger:     logg,
		Repository: jobs.NewRepository(dbClient.DB()),
		Metrics:    pipelineMetrics,
		StaleAfter: cfg.Jobs.StaleAfter,
		BatchSize:  cfg.Cron.StaleSweepBatchSize,
	})
	if err != nil {
		return nil, err
	}
	counterGC, err := cron.NewUsageCounterGC(logg, quota.NewRepository(dbClient.DB()), cfg.Quota.CounterRetention)
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(logg, outbox.NewRepository(dbClient.DB()), time.Duration(cfg.Cron.OutboxRetentionDays)*24*time.Hour)
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, s := range []struct {
		job   cron.Job
		every time.Duration
	}{
		{staleSweep, cfg.Cron.StaleSweepEvery},
		{counterGC, cfg.Cron.CounterGCEvery},
		{outboxRetention, cfg.Cron.OutboxRetentionEvery},
	} {
		if err := registry.Register(s.job, s.every); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
