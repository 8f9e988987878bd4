package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
	"github.com/mivahub/mivahub-backend/pkg/worker"
)

const (
	defaultSubmitTimeout = 10 * time.Second
	recordTimeout        = 5 * time.Second
)

// Submitter sends a job to the external worker.
type Submitter interface {
	Submit(ctx context.Context, req worker.ProcessRequest) (int, error)
}

// Outcome reports how a single dispatch attempt ended.
type Outcome struct {
	Accepted   bool
	StatusCode int
	Message    string
	Job        *models.ProcessingJob
}

// Dispatcher hands jobs to the worker and records the result in the ledger.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.ProcessingJob, materialRef string) (*Outcome, error)
}

// Params groups dependencies for the dispatcher.
type Params struct {
	Worker  Submitter
	Ledger  jobs.Ledger
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics
	// Timeout bounds the worker call once it is detached from the caller.
	Timeout time.Duration
	Now     func() time.Time
}

type dispatcher struct {
	worker  Submitter
	ledger  jobs.Ledger
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics
	timeout time.Duration
	now     func() time.Time
}

// New builds a dispatcher.
func New(params Params) (Dispatcher, error) {
	if params.Worker == nil {
		return nil, errors.New("worker client is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("job ledger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return &dispatcher{
		worker:  params.Worker,
		ledger:  params.Ledger,
		logg:    params.Logger,
		metrics: params.Metrics,
		timeout: timeout,
		now:     now,
	}, nil
}

// Dispatch makes exactly one attempt. A 2xx moves the job to processing;
// any other status or a transport error marks it failed. The returned error
// is only set when the ledger itself could not be updated.
//
// The attempt and its ledger write ignore cancellation of ctx: once the
// worker has been called the outcome must be recorded even if the client
// that triggered the upload has gone away.
func (d *dispatcher) Dispatch(ctx context.Context, job *models.ProcessingJob, materialRef string) (*Outcome, error) {
	if job == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job is required")
	}
	ctx = context.WithoutCancel(ctx)
	if d.logg != nil {
		ctx = d.logg.WithJobID(ctx, job.ID.String())
		ctx = d.logg.WithMaterialID(ctx, job.MaterialID.String())
	}

	start := d.now()
	submitCtx, cancelSubmit := context.WithTimeout(ctx, d.timeout)
	code, submitErr := d.worker.Submit(submitCtx, worker.ProcessRequest{
		MaterialRef: materialRef,
		MaterialID:  job.MaterialID,
		JobID:       job.ID,
		JobType:     job.JobType,
	})
	cancelSubmit()
	elapsed := d.now().Sub(start)

	recordCtx, cancelRecord := context.WithTimeout(ctx, recordTimeout)
	defer cancelRecord()

	if submitErr == nil {
		d.metrics.ObserveDispatch(string(job.JobType), metrics.DispatchAccepted, elapsed)
		updated, err := d.ledger.MarkProcessing(recordCtx, job.ID)
		if err != nil {
			settled, serr := d.settled(recordCtx, job, err)
			if serr != nil {
				return nil, serr
			}
			updated = settled
		}
		if d.logg != nil {
			d.logg.Info(d.logg.WithField(ctx, "worker_status", code), "job dispatched")
		}
		return &Outcome{Accepted: true, StatusCode: code, Job: updated}, nil
	}

	outcome := metrics.DispatchTransport
	var statusErr *worker.StatusError
	if errors.As(submitErr, &statusErr) {
		outcome = metrics.DispatchRejected
	}
	d.metrics.ObserveDispatch(string(job.JobType), outcome, elapsed)

	message := submitErr.Error()
	if d.logg != nil {
		d.logg.Error(d.logg.WithField(ctx, "worker_status", code), "job dispatch failed", submitErr)
	}
	updated, err := d.ledger.MarkFailed(recordCtx, job.ID, message)
	if err != nil {
		settled, serr := d.settled(recordCtx, job, err)
		if serr != nil {
			return nil, serr
		}
		updated = settled
	}
	return &Outcome{Accepted: false, StatusCode: code, Message: message, Job: updated}, nil
}

// settled resolves a lost transition race: when the worker's result landed
// first the job is already terminal and that state is the outcome.
func (d *dispatcher) settled(ctx context.Context, job *models.ProcessingJob, cause error) (*models.ProcessingJob, error) {
	if !pkgerrors.IsCode(cause, pkgerrors.CodeStateConflict) {
		return nil, cause
	}
	current, err := d.ledger.Get(ctx, job.ID)
	if err != nil {
		return nil, cause
	}
	if !current.Status.IsTerminal() {
		return nil, cause
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithField(ctx, "status", string(current.Status)), "job settled before dispatch was recorded")
	}
	return current, nil
}
