package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// MaterialUploadedEvent is emitted once a material row and its job exist.
type MaterialUploadedEvent struct {
	MaterialID uuid.UUID      `json:"material_id"`
	JobID      uuid.UUID      `json:"job_id"`
	UploadedBy uuid.UUID      `json:"uploaded_by"`
	FileType   enums.FileType `json:"file_type"`
	SizeBytes  int64          `json:"size_bytes"`
}

// JobDispatchedEvent reports that the worker accepted a job.
type JobDispatchedEvent struct {
	JobID      uuid.UUID     `json:"job_id"`
	MaterialID uuid.UUID     `json:"material_id"`
	JobType    enums.JobType `json:"job_type"`
	StartedAt  time.Time     `json:"started_at"`
}

// JobCompletedEvent reports a job that produced content.
type JobCompletedEvent struct {
	JobID        uuid.UUID     `json:"job_id"`
	MaterialID   uuid.UUID     `json:"material_id"`
	JobType      enums.JobType `json:"job_type"`
	CompletedAt  time.Time     `json:"completed_at"`
	WordCount    *int          `json:"word_count,omitempty"`
	QualityScore *float64      `json:"quality_score,omitempty"`
}

// JobFailedEvent reports a job that ended without content.
type JobFailedEvent struct {
	JobID        uuid.UUID     `json:"job_id"`
	MaterialID   uuid.UUID     `json:"material_id"`
	JobType      enums.JobType `json:"job_type"`
	CompletedAt  time.Time     `json:"completed_at"`
	ErrorMessage string        `json:"error_message"`
}
