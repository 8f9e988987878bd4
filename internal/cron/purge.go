package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mivahub/mivahub-backend/pkg/logger"
)

const (
	defaultCounterRetention = 90 * 24 * time.Hour
	defaultOutboxRetention  = 30 * 24 * time.Hour
	defaultDeleteBatchSize  = 1000
	maxDeleteBatches        = 100
)

// DeleteBefore removes up to limit rows older than cutoff and reports how
// many went.
type DeleteBefore func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

// PurgeParams describes a retention job: rows older than Retention are
// deleted in batches of BatchSize.
type PurgeParams struct {
	Name      string
	Logger    *logger.Logger
	Delete    DeleteBefore
	Retention time.Duration
	BatchSize int
}

type purgeJob struct {
	name      string
	logg      *logger.Logger
	del       DeleteBefore
	retention time.Duration
	batch     int
	now       func() time.Time
}

func NewPurgeJob(p PurgeParams) (Job, error) {
	switch {
	case p.Name == "":
		return nil, errors.New("purge job name required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Delete == nil:
		return nil, fmt.Errorf("%s: delete func required", p.Name)
	case p.Retention <= 0:
		return nil, fmt.Errorf("%s: retention must be positive", p.Name)
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultDeleteBatchSize
	}
	return &purgeJob{
		name:      p.Name,
		logg:      p.Logger,
		del:       p.Delete,
		retention: p.Retention,
		batch:     p.BatchSize,
		now:       time.Now,
	}, nil
}

func (j *purgeJob) Name() string { return j.name }

func (j *purgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := deleteInBatches(ctx, j.batch, func(ctx context.Context, limit int) (int64, error) {
		return j.del(ctx, cutoff, limit)
	})
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"job":          j.name,
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(logCtx, "cron.purge.done")
	return nil
}

type counterPurger interface {
	DeleteExpired(ctx context.Context, endedBefore time.Time, limit int) (int64, error)
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewUsageCounterGC drops usage counters whose window closed more than
// retention ago. Open windows are never touched.
func NewUsageCounterGC(logg *logger.Logger, repo counterPurger, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, errors.New("quota repository required")
	}
	return NewPurgeJob(PurgeParams{
		Name:      "usage-counter-gc",
		Logger:    logg,
		Delete:    repo.DeleteExpired,
		Retention: orDefault(retention, defaultCounterRetention),
	})
}

// NewOutboxRetentionJob drops outbox rows published more than retention ago.
// Unpublished and parked rows stay for inspection.
func NewOutboxRetentionJob(logg *logger.Logger, repo outboxPurger, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, errors.New("outbox repository required")
	}
	return NewPurgeJob(PurgeParams{
		Name:      "outbox-retention",
		Logger:    logg,
		Delete:    repo.DeletePublishedBefore,
		Retention: orDefault(retention, defaultOutboxRetention),
	})
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// deleteInBatches calls del until it removes fewer rows than limit or the
// batch ceiling is hit; the next cycle picks up any remainder.
func deleteInBatches(ctx context.Context, limit int, del func(ctx context.Context, limit int) (int64, error)) (int64, error) {
	var total int64
	for range maxDeleteBatches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := del(ctx, limit)
		total += rows
		if err != nil {
			return total, err
		}
		if rows < int64(limit) {
			break
		}
	}
	return total, nil
}
