package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// Repository persists processing jobs and their content. Status changes go
// through Transition, a single guarded UPDATE.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.ProcessingJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.JobStatus, updates map[string]any) (bool, error)
	InsertContent(ctx context.Context, content *models.ProcessedContent) error
	FindContentByJobID(ctx context.Context, jobID uuid.UUID) (*models.ProcessedContent, error)
	ListStaleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ProcessingJob, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a jobs repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, job *models.ProcessingJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// Transition applies updates only while the job is in one of the from
// statuses. It reports whether the row changed.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.JobStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProcessingJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertContent(ctx context.Context, content *models.ProcessedContent) error {
	if content.ID == uuid.Nil {
		content.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(content).Error
}

func (r *repository) FindContentByJobID(ctx context.Context, jobID uuid.UUID) (*models.ProcessedContent, error) {
	var content models.ProcessedContent
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&content).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &content, nil
}

// ListStaleBefore returns unfinished jobs older than cutoff, oldest first:
// processing jobs by started_at and pending jobs by created_at.
func (r *repository) ListStaleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ProcessingJob, error) {
	if limit <= 0 {
		limit = 500
	}
	cutoff = cutoff.UTC()
	var out []models.ProcessingJob
	if err := r.db.WithContext(ctx).
		Where("(status = ? AND started_at < ?) OR (status = ? AND created_at < ?)",
			enums.JobStatusProcessing, cutoff, enums.JobStatusPending, cutoff).
		Order("COALESCE(started_at, created_at) ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
