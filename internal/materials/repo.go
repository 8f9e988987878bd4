package materials

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// Repository persists uploaded materials.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, material *models.Material) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Material, error)
	FindByJobID(ctx context.Context, jobID uuid.UUID) (*models.Material, error)
	List(ctx context.Context, filter ListFilter) ([]ListingRow, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a materials repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, material *models.Material) error {
	if material.ID == uuid.Nil {
		material.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(material).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&material).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &material, nil
}

func (r *repository) FindByJobID(ctx context.Context, jobID uuid.UUID) (*models.Material, error) {
	var material models.Material
	err := r.db.WithContext(ctx).
		Joins("JOIN processing_jobs ON processing_jobs.material_id = materials.id").
		Where("processing_jobs.id = ?", jobID).
		First(&material).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &material, nil
}

// ListingRow is one material joined to its latest job and processed content.
type ListingRow struct {
	ID          uuid.UUID
	CourseID    uuid.NullUUID
	UploadedBy  uuid.UUID
	Title       string
	FileType    enums.FileType
	WeekNumber  *int
	CreatedAt   time.Time
	JobID       uuid.NullUUID
	JobStatus   *enums.JobStatus
	ContentID   uuid.NullUUID
	Summary     *string
	KeyConcepts pq.StringArray
}

// List returns materials ordered by week (unscheduled last) and title.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]ListingRow, error) {
	q := r.db.WithContext(ctx).
		Table("materials").
		Select(`materials.id, materials.course_id, materials.uploaded_by, materials.title,
			materials.file_type, materials.week_number, materials.created_at,
			pj.id AS job_id, pj.status AS job_status,
			pc.id AS content_id, pc.summary, pc.key_concepts`).
		Joins(`LEFT JOIN processing_jobs pj ON pj.id = (
			SELECT j.id FROM processing_jobs j WHERE j.material_id = materials.id
			ORDER BY j.created_at DESC, j.id DESC LIMIT 1)`).
		Joins("LEFT JOIN processed_contents pc ON pc.material_id = materials.id")
	if filter.UploadedBy != nil {
		q = q.Where("materials.uploaded_by = ?", *filter.UploadedBy)
	}
	if filter.CourseID != nil {
		q = q.Where("materials.course_id = ?", *filter.CourseID)
	}
	if filter.ProcessedOnly {
		q = q.Where("pc.id IS NOT NULL")
	}

	var rows []ListingRow
	err := q.
		Order("materials.week_number IS NULL, materials.week_number, materials.title, materials.id").
		Limit(filter.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
