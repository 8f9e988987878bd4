package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
	"github.com/mivahub/mivahub-backend/pkg/outbox/payloads"
)

const maxErrorMessageLen = 2000

// CreateInput describes a new job.
type CreateInput struct {
	MaterialID uuid.UUID
	JobType    enums.JobType
	Metadata   map[string]any
}

// ContentInput is the worker output stored when a job completes.
type ContentInput struct {
	Summary            *string  `json:"summary"`
	ExtractedText      *string  `json:"extracted_text"`
	KeyConcepts        []string `json:"key_concepts"`
	LearningObjectives []string `json:"learning_objectives"`
	DifficultyLevel    *string  `json:"difficulty_level"`
	WordCount          *int     `json:"word_count"`
	QualityScore       *float64 `json:"quality_score"`
	ModelUsed          *string  `json:"model_used"`
}

// Ledger is the only writer of processing job status.
type Ledger interface {
	Create(ctx context.Context, input CreateInput) (*models.ProcessingJob, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.ProcessingJob, error)
	MarkProcessing(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error)
	MarkCompleted(ctx context.Context, jobID uuid.UUID, content ContentInput) (*models.ProcessingJob, error)
	MarkFailed(ctx context.Context, jobID uuid.UUID, message string) (*models.ProcessingJob, error)
	Get(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error)
	GetContent(ctx context.Context, jobID uuid.UUID) (*models.ProcessedContent, error)
}

// LedgerParams groups dependencies for the ledger.
type LedgerParams struct {
	DB      db.TxRunner
	Repo    Repository
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics
	Now     func() time.Time
}

type ledger struct {
	db      db.TxRunner
	repo    Repository
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics
	now     func() time.Time
}

// NewLedger builds the job ledger.
func NewLedger(params LedgerParams) (Ledger, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Repo == nil {
		return nil, errors.New("jobs repository is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ledger{
		db:      params.DB,
		repo:    params.Repo,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (l *ledger) Create(ctx context.Context, input CreateInput) (*models.ProcessingJob, error) {
	var job *models.ProcessingJob
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := l.CreateTx(ctx, tx, input)
		if err != nil {
			return err
		}
		job = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// CreateTx inserts a pending job using the caller's transaction.
func (l *ledger) CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.ProcessingJob, error) {
	if input.MaterialID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material id is required")
	}
	if !input.JobType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid job type %q", input.JobType))
	}
	var meta json.RawMessage
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode job metadata")
		}
		meta = raw
	}
	job := &models.ProcessingJob{
		ID:         uuid.New(),
		MaterialID: input.MaterialID,
		JobType:    input.JobType,
		Status:     enums.JobStatusPending,
		Metadata:   meta,
		CreatedAt:  l.now().UTC(),
	}
	if err := l.repo.WithTx(tx).Create(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create processing job")
	}
	l.metrics.IncJobTransition(string(enums.JobStatusPending))
	return job, nil
}

// MarkProcessing records that the worker accepted the job. Repeating it on a
// processing job is a no-op; a terminal job cannot go back.
func (l *ledger) MarkProcessing(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error) {
	now := l.now().UTC()
	var out *models.ProcessingJob
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		applied, err := repo.Transition(ctx, jobID, []enums.JobStatus{enums.JobStatusPending}, map[string]any{
			"status":     enums.JobStatusProcessing,
			"started_at": now,
			"updated_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark job processing")
		}
		job, err := l.load(ctx, repo, jobID)
		if err != nil {
			return err
		}
		out = job
		if !applied {
			if job.Status == enums.JobStatusProcessing {
				return nil
			}
			return transitionConflict(job, enums.JobStatusProcessing)
		}
		l.metrics.IncJobTransition(string(enums.JobStatusProcessing))
		return l.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventJobDispatched,
			AggregateID: job.ID,
			OccurredAt:  now,
			Payload: payloads.JobDispatchedEvent{
				JobID:      job.ID,
				MaterialID: job.MaterialID,
				JobType:    job.JobType,
				StartedAt:  now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkCompleted moves a pending or processing job to completed and stores
// its content in the same transaction. A repeat on a completed job returns
// the stored job without writing again.
func (l *ledger) MarkCompleted(ctx context.Context, jobID uuid.UUID, content ContentInput) (*models.ProcessingJob, error) {
	now := l.now().UTC()
	var out *models.ProcessingJob
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		applied, err := repo.Transition(ctx, jobID, []enums.JobStatus{enums.JobStatusPending, enums.JobStatusProcessing}, map[string]any{
			"status":        enums.JobStatusCompleted,
			"progress":      100,
			"started_at":    gorm.Expr("COALESCE(started_at, ?)", now),
			"completed_at":  now,
			"error_message": nil,
			"updated_at":    now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark job completed")
		}
		job, err := l.load(ctx, repo, jobID)
		if err != nil {
			return err
		}
		out = job
		if !applied {
			return l.repeatedTerminal(ctx, job, enums.JobStatusCompleted)
		}

		row := &models.ProcessedContent{
			ID:                 uuid.New(),
			MaterialID:         job.MaterialID,
			JobID:              job.ID,
			Summary:            content.Summary,
			ExtractedText:      content.ExtractedText,
			KeyConcepts:        pq.StringArray(content.KeyConcepts),
			LearningObjectives: pq.StringArray(content.LearningObjectives),
			DifficultyLevel:    content.DifficultyLevel,
			WordCount:          content.WordCount,
			QualityScore:       content.QualityScore,
			ModelUsed:          content.ModelUsed,
		}
		if err := repo.InsertContent(ctx, row); err != nil {
			if db.IsUniqueViolation(err, "processed_contents_material_key") {
				return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "material already has processed content")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store processed content")
		}
		l.metrics.IncJobTransition(string(enums.JobStatusCompleted))
		return l.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventJobCompleted,
			AggregateID: job.ID,
			OccurredAt:  now,
			Payload: payloads.JobCompletedEvent{
				JobID:        job.ID,
				MaterialID:   job.MaterialID,
				JobType:      job.JobType,
				CompletedAt:  now,
				WordCount:    content.WordCount,
				QualityScore: content.QualityScore,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkFailed moves a pending or processing job to failed with message.
func (l *ledger) MarkFailed(ctx context.Context, jobID uuid.UUID, message string) (*models.ProcessingJob, error) {
	message = truncateMessage(strings.TrimSpace(message))
	if message == "" {
		message = "processing failed"
	}
	now := l.now().UTC()
	var out *models.ProcessingJob
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		applied, err := repo.Transition(ctx, jobID, []enums.JobStatus{enums.JobStatusPending, enums.JobStatusProcessing}, map[string]any{
			"status":        enums.JobStatusFailed,
			"completed_at":  now,
			"error_message": message,
			"updated_at":    now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark job failed")
		}
		job, err := l.load(ctx, repo, jobID)
		if err != nil {
			return err
		}
		out = job
		if !applied {
			return l.repeatedTerminal(ctx, job, enums.JobStatusFailed)
		}
		l.metrics.IncJobTransition(string(enums.JobStatusFailed))
		return l.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventJobFailed,
			AggregateID: job.ID,
			OccurredAt:  now,
			Payload: payloads.JobFailedEvent{
				JobID:        job.ID,
				MaterialID:   job.MaterialID,
				JobType:      job.JobType,
				CompletedAt:  now,
				ErrorMessage: message,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *ledger) Get(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error) {
	if jobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id is required")
	}
	return l.load(ctx, l.repo, jobID)
}

// GetContent returns the processed content of a job, or nil when none exists.
func (l *ledger) GetContent(ctx context.Context, jobID uuid.UUID) (*models.ProcessedContent, error) {
	content, err := l.repo.FindContentByJobID(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load processed content")
	}
	return content, nil
}

func (l *ledger) load(ctx context.Context, repo Repository, jobID uuid.UUID) (*models.ProcessingJob, error) {
	job, err := repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load processing job")
	}
	if job == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "processing job not found")
	}
	return job, nil
}

// repeatedTerminal handles a terminal write that lost the guard: the same
// outcome again is accepted, anything else is a conflict.
func (l *ledger) repeatedTerminal(ctx context.Context, job *models.ProcessingJob, target enums.JobStatus) error {
	if job.Status != target {
		return transitionConflict(job, target)
	}
	if l.logg != nil {
		logCtx := l.logg.WithJobID(ctx, job.ID.String())
		logCtx = l.logg.WithField(logCtx, "status", string(target))
		l.logg.Warn(logCtx, "duplicate terminal transition ignored")
	}
	return nil
}

func transitionConflict(job *models.ProcessingJob, target enums.JobStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("job %s cannot move from %s to %s", job.ID, job.Status, target)).
		WithDetails(map[string]any{
			"job_id": job.ID,
			"status": job.Status,
			"target": target,
		})
}

// truncateMessage caps message at maxErrorMessageLen bytes without splitting
// a rune; invalid UTF-8 is dropped so Postgres accepts the text.
func truncateMessage(message string) string {
	message = strings.ToValidUTF8(message, "")
	if len(message) <= maxErrorMessageLen {
		return message
	}
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
