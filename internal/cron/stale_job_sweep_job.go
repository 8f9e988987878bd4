package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
)

const (
	defaultStaleAfter     = 30 * time.Minute
	defaultStaleSweepSize = 500
)

type StaleJobSweepParams struct {
	Logger     *logger.Logger
	Repository staleJobLister
	Metrics    *metrics.PipelineMetrics
	StaleAfter time.Duration
	BatchSize  int
}

type staleJobLister interface {
	ListStaleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ProcessingJob, error)
}

// NewStaleJobSweep reports jobs stuck in processing and pending jobs the
// worker never confirmed. It only observes; the jobs keep their status until
// the worker reports a result.
func NewStaleJobSweep(params StaleJobSweepParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("job repository required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleSweepSize
	}
	return &staleJobSweep{
		logg:       params.Logger,
		repo:       params.Repository,
		metrics:    params.Metrics,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type staleJobSweep struct {
	logg       *logger.Logger
	repo       staleJobLister
	metrics    *metrics.PipelineMetrics
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *staleJobSweep) Name() string { return "stale-job-sweep" }

func (j *staleJobSweep) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.staleAfter)
	stale, err := j.repo.ListStaleBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale jobs: %w", err)
	}
	j.metrics.SetStaleJobs(len(stale))

	for _, job := range stale {
		logCtx := j.logg.WithJobID(ctx, job.ID.String())
		logCtx = j.logg.WithMaterialID(logCtx, job.MaterialID.String())
		since := job.CreatedAt
		if job.StartedAt != nil {
			since = *job.StartedAt
		}
		j.logg.Warn(j.logg.WithFields(logCtx, map[string]any{
			"job_type":    string(job.JobType),
			"status":      string(job.Status),
			"since":       since.UTC(),
			"age_seconds": int64(now.Sub(since).Seconds()),
		}), "job is stale")
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":      cutoff,
		"stale_after": j.staleAfter.String(),
		"stale_jobs":  len(stale),
	}), "stale job sweep complete")
	return nil
}
