package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mivahub/mivahub-backend/pkg/bootstrap"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
	"github.com/mivahub/mivahub-backend/pkg/outbox/registry"
	"github.com/mivahub/mivahub-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database()

	catalog, err := registry.NewCatalog(cfg.PubSub)
	proc.Check("failed to build event catalog", err)

	pubsubClient, err := pubsub.NewClient(proc.Ctx, cfg.GCP, pubsub.Resources{Topics: catalog.Topics()}, logg)
	proc.Check("failed to bootstrap pubsub", err)
	proc.OnClose("pubsub", pubsubClient.Close)

	relay, err := NewRelay(RelayParams{
		Config:  cfg.Outbox,
		Logger:  logg,
		Metrics: metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
		DB:      dbClient,
		Rows:    outbox.NewRepository(dbClient.DB()),
		Catalog: catalog,
		Sender:  pubsubClient,
	})
	proc.Check("failed to create outbox relay", err)

	logg.Info(logg.WithFields(proc.Ctx, map[string]any{
		"batch_size":   cfg.Outbox.BatchSize,
		"max_attempts": cfg.Outbox.MaxAttempts,
		"topics":       catalog.Topics(),
	}), "outbox.relay.start")

	if err := relay.Run(proc.Ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Fatal("outbox relay stopped unexpectedly", err)
	}
	logg.Info(proc.Ctx, "outbox.relay.stopped")
}
