package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// ProcessingJob records one asynchronous processing run for a material.
type ProcessingJob struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MaterialID   uuid.UUID       `gorm:"column:material_id;type:uuid;not null;index"`
	JobType      enums.JobType   `gorm:"column:job_type;type:job_type;not null"`
	Status       enums.JobStatus `gorm:"column:status;type:job_status;not null;default:'pending'"`
	Progress     int             `gorm:"column:progress;not null;default:0"`
	StartedAt    *time.Time      `gorm:"column:started_at"`
	CompletedAt  *time.Time      `gorm:"column:completed_at"`
	ErrorMessage *string         `gorm:"column:error_message"`
	Metadata     json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
