package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/internal/results"
	"github.com/mivahub/mivahub-backend/pkg/bootstrap"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
	"github.com/mivahub/mivahub-backend/pkg/outbox/idempotency"
	"github.com/mivahub/mivahub-backend/pkg/pubsub"
)

const serviceName = "results-consumer"

func main() {
	proc := bootstrap.Start(serviceName)
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database()
	redisClient := proc.Redis()

	pubsubClient, err := pubsub.NewClient(proc.Ctx, cfg.GCP, pubsub.Resources{
		Subscriptions: []string{cfg.PubSub.JobResultsSubscription},
	}, logg)
	proc.Check("failed to bootstrap pubsub", err)
	proc.OnClose("pubsub", pubsubClient.Close)

	ledger, err := jobs.NewLedger(jobs.LedgerParams{
		DB:      dbClient,
		Repo:    jobs.NewRepository(dbClient.DB()),
		Outbox:  outbox.NewWriter(outbox.NewRepository(dbClient.DB()), logg),
		Logger:  logg,
		Metrics: metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
	})
	proc.Check("failed to create job ledger", err)

	applier, err := results.NewApplier(ledger)
	proc.Check("failed to create result applier", err)

	guard, err := idempotency.NewGuard(redisClient, results.ConsumerName, cfg.Eventing.IdempotencyTTL)
	proc.Check("failed to create idempotency guard", err)

	resultConsumer, err := results.NewConsumer(pubsubClient.Subscriber(cfg.PubSub.JobResultsSubscription), applier, guard, logg)
	proc.Check("failed to create result consumer", err)

	service, err := NewService(ServiceParams{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient.Ping,
		Redis:          redisClient.Ping,
		PubSub:         pubsubClient.Ping,
		ResultConsumer: resultConsumer,
	})
	proc.Check("failed to create results consumer service", err)

	ctx := logg.WithField(proc.Ctx, "subscription", cfg.PubSub.JobResultsSubscription)
	logg.Info(ctx, "starting results consumer")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Fatal("results consumer stopped unexpectedly", err)
	}
	logg.Info(ctx, "results consumer shutting down gracefully")
}
