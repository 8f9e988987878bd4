package materials

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/internal/dispatch"
	"github.com/mivahub/mivahub-backend/internal/jobs"
	"github.com/mivahub/mivahub-backend/internal/quota"
	"github.com/mivahub/mivahub-backend/pkg/db"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
	"github.com/mivahub/mivahub-backend/pkg/outbox/payloads"
	"github.com/mivahub/mivahub-backend/pkg/storage"
)

// UploadInput is a validated-on-entry upload request.
type UploadInput struct {
	UserID      uuid.UUID
	CourseID    *uuid.UUID
	Title       string
	Description *string
	WeekNumber  *int
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadResult is returned as soon as the job has been handed to the worker.
type UploadResult struct {
	MaterialID   uuid.UUID       `json:"material_id"`
	JobID        uuid.UUID       `json:"job_id"`
	Status       enums.JobStatus `json:"status"`
	FileType     enums.FileType  `json:"file_type"`
	JobType      enums.JobType   `json:"job_type"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

// Orchestrator runs the upload flow.
type Orchestrator interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
}

// OrchestratorParams groups dependencies for the upload flow.
type OrchestratorParams struct {
	DB              db.TxRunner
	Repo            Repository
	Quota           quota.Service
	Store           storage.ObjectStore
	Ledger          jobs.Ledger
	Dispatcher      dispatch.Dispatcher
	Outbox          outbox.Emitter
	Logger          *logger.Logger
	UploadUsageType string
	UpgradeURL      string
	Semester        string
	MaxUploadBytes  int64
	Now             func() time.Time
}

type orchestrator struct {
	db         db.TxRunner
	repo       Repository
	quota      quota.Service
	store      storage.ObjectStore
	ledger     jobs.Ledger
	dispatcher dispatch.Dispatcher
	outbox     outbox.Emitter
	logg       *logger.Logger
	usageType  string
	upgradeURL string
	semester   string
	maxBytes   int64
	now        func() time.Time
}

// NewOrchestrator builds the upload orchestrator.
func NewOrchestrator(params OrchestratorParams) (Orchestrator, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("db is required")
	case params.Repo == nil:
		return nil, errors.New("materials repository is required")
	case params.Quota == nil:
		return nil, errors.New("quota service is required")
	case params.Store == nil:
		return nil, errors.New("object store is required")
	case params.Ledger == nil:
		return nil, errors.New("job ledger is required")
	case params.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter is required")
	}
	usageType := strings.TrimSpace(params.UploadUsageType)
	if usageType == "" {
		usageType = quota.UsageUploads
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &orchestrator{
		db:         params.DB,
		repo:       params.Repo,
		quota:      params.Quota,
		store:      params.Store,
		ledger:     params.Ledger,
		dispatcher: params.Dispatcher,
		outbox:     params.Outbox,
		logg:       params.Logger,
		usageType:  usageType,
		upgradeURL: params.UpgradeURL,
		semester:   params.Semester,
		maxBytes:   params.MaxUploadBytes,
		now:        now,
	}, nil
}

// Upload validates, reserves one upload, stores the file, records the
// material and its pending job, then dispatches once. A dispatch failure is
// reported through the job status, not as an error.
func (o *orchestrator) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	fileType, err := validateUpload(input, o.maxBytes)
	if err != nil {
		return nil, err
	}
	body, detected, err := sniff(input.Body, fileType)
	if err != nil {
		return nil, err
	}
	if o.logg != nil {
		ctx = o.logg.WithUserID(ctx, input.UserID.String())
	}

	decision, err := o.quota.CheckAndReserve(ctx, quota.Request{
		UserID:     input.UserID,
		UsageType:  o.usageType,
		PeriodType: enums.PeriodDaily,
		Amount:     1,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, quota.ExceededError(decision, o.upgradeURL)
	}

	materialID := uuid.New()
	if o.logg != nil {
		ctx = o.logg.WithMaterialID(ctx, materialID.String())
	}
	contentType := baseType(input.ContentType)
	key := storage.MaterialKey(input.UserID, materialID, input.FileName)
	ref, err := o.store.Put(ctx, key, contentType, body, input.Size)
	if err != nil {
		if o.logg != nil {
			o.logg.Error(ctx, "material upload to object store failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storage unavailable")
	}

	material := &models.Material{
		ID:          materialID,
		CourseID:    input.CourseID,
		UploadedBy:  input.UserID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		FileType:    fileType,
		FileName:    input.FileName,
		ContentType: contentType,
		SizeBytes:   input.Size,
		ObjectKey:   key,
		WeekNumber:  input.WeekNumber,
		Semester:    o.semester,
	}

	var job *models.ProcessingJob
	err = o.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := o.repo.WithTx(tx).Create(ctx, material); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create material")
		}
		created, err := o.ledger.CreateTx(ctx, tx, jobs.CreateInput{
			MaterialID: material.ID,
			JobType:    fileType.JobType(),
			Metadata: map[string]any{
				"file_name":     input.FileName,
				"content_type":  contentType,
				"detected_type": detected,
				"object_key":    key,
				"object_ref":    ref,
				"file_type":     fileType,
			},
		})
		if err != nil {
			return err
		}
		job = created
		return o.outbox.Emit(ctx, tx, outbox.Event{
			Type:        enums.EventMaterialUploaded,
			AggregateID: material.ID,
			OccurredAt:  o.now().UTC(),
			Payload: payloads.MaterialUploadedEvent{
				MaterialID: material.ID,
				JobID:      created.ID,
				UploadedBy: input.UserID,
				FileType:   fileType,
				SizeBytes:  input.Size,
			},
		})
	})
	if err != nil {
		o.discardObject(ctx, key)
		return nil, err
	}

	result := &UploadResult{
		MaterialID: material.ID,
		JobID:      job.ID,
		Status:     job.Status,
		FileType:   fileType,
		JobType:    job.JobType,
	}

	outcome, err := o.dispatcher.Dispatch(ctx, job, ref)
	if err != nil {
		// The job stays pending; polling and the stale sweep flag it once it ages.
		if o.logg != nil {
			o.logg.Error(o.logg.WithJobID(ctx, job.ID.String()), "recording dispatch outcome failed", err)
		}
		return result, nil
	}
	if outcome.Job != nil {
		result.Status = outcome.Job.Status
		result.ErrorMessage = outcome.Job.ErrorMessage
	}
	return result, nil
}

func (o *orchestrator) discardObject(ctx context.Context, key string) {
	if err := o.store.Delete(ctx, key); err != nil && o.logg != nil {
		o.logg.Warn(o.logg.WithField(ctx, "object_key", key), "orphaned material object left in storage")
	}
}
