package status

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

// MaterialReader resolves the material behind a job for ownership checks.
type MaterialReader interface {
	FindByJobID(ctx context.Context, jobID uuid.UUID) (*models.Material, error)
}

// Viewer identifies who is polling.
type Viewer struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// Content is the processed output exposed once a job completes.
type Content struct {
	Summary            *string  `json:"summary,omitempty"`
	ExtractedText      *string  `json:"extracted_text,omitempty"`
	KeyConcepts        []string `json:"key_concepts"`
	LearningObjectives []string `json:"learning_objectives"`
	DifficultyLevel    *string  `json:"difficulty_level,omitempty"`
	WordCount          *int     `json:"word_count,omitempty"`
	QualityScore       *float64 `json:"quality_score,omitempty"`
	ModelUsed          *string  `json:"model_used,omitempty"`
}

// JobStatus is the polled view of a job.
type JobStatus struct {
	JobID         uuid.UUID       `json:"job_id"`
	MaterialID    uuid.UUID       `json:"material_id"`
	MaterialTitle string          `json:"material_title"`
	JobType       enums.JobType   `json:"job_type"`
	Status        enums.JobStatus `json:"status"`
	Progress      int             `json:"progress"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at"`
	ErrorMessage  *string         `json:"error_message"`
	AIProcessed   bool            `json:"ai_processed"`
	Content       *Content        `json:"content,omitempty"`
	Stale         bool            `json:"stale"`
}

// Observer is the read path for job status.
type Observer interface {
	Status(ctx context.Context, jobID uuid.UUID, viewer Viewer) (*JobStatus, error)
}

// Params groups dependencies for the observer.
type Params struct {
	Ledger     jobs.Ledger
	Materials  MaterialReader
	StaleAfter time.Duration
	Now        func() time.Time
}

type observer struct {
	ledger     jobs.Ledger
	materials  MaterialReader
	staleAfter time.Duration
	now        func() time.Time
}

// NewObserver builds the status observer.
func NewObserver(params Params) (Observer, error) {
	if params.Ledger == nil {
		return nil, errors.New("job ledger is required")
	}
	if params.Materials == nil {
		return nil, errors.New("material reader is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &observer{
		ledger:     params.Ledger,
		materials:  params.Materials,
		staleAfter: params.StaleAfter,
		now:        now,
	}, nil
}

// Status never mutates the job. Callers that do not own the material get
// NOT_FOUND so job ids cannot be probed.
func (o *observer) Status(ctx context.Context, jobID uuid.UUID, viewer Viewer) (*JobStatus, error) {
	job, err := o.ledger.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	material, err := o.materials.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load material")
	}
	if !viewer.IsAdmin && (material == nil || material.UploadedBy != viewer.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "processing job not found")
	}

	out := &JobStatus{
		JobID:        job.ID,
		MaterialID:   job.MaterialID,
		JobType:      job.JobType,
		Status:       job.Status,
		Progress:     job.Progress,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
		Stale:        IsStale(job, o.now(), o.staleAfter),
	}
	if material != nil {
		out.MaterialTitle = material.Title
	}
	if job.Status == enums.JobStatusCompleted {
		content, err := o.ledger.GetContent(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if content != nil {
			out.Content = toContent(content)
			out.AIProcessed = true
		}
	}
	return out, nil
}

// IsStale reports whether an unfinished job has waited longer than
// threshold: a processing job since it started, a pending job since it was
// created. A zero threshold disables detection.
func IsStale(job *models.ProcessingJob, now time.Time, threshold time.Duration) bool {
	if job == nil || threshold <= 0 {
		return false
	}
	switch job.Status {
	case enums.JobStatusProcessing:
		return job.StartedAt != nil && now.Sub(*job.StartedAt) > threshold
	case enums.JobStatusPending:
		return !job.CreatedAt.IsZero() && now.Sub(job.CreatedAt) > threshold
	default:
		return false
	}
}

func toContent(c *models.ProcessedContent) *Content {
	return &Content{
		Summary:            c.Summary,
		ExtractedText:      c.ExtractedText,
		KeyConcepts:        nonNil(c.KeyConcepts),
		LearningObjectives: nonNil(c.LearningObjectives),
		DifficultyLevel:    c.DifficultyLevel,
		WordCount:          c.WordCount,
		QualityScore:       c.QualityScore,
		ModelUsed:          c.ModelUsed,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
