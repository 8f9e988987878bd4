package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ProcessedContent holds the worker's output for a completed job.
type ProcessedContent struct {
	ID                 uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MaterialID         uuid.UUID      `gorm:"column:material_id;type:uuid;not null;uniqueIndex"`
	JobID              uuid.UUID      `gorm:"column:job_id;type:uuid;not null;uniqueIndex"`
	Summary            *string        `gorm:"column:summary"`
	ExtractedText      *string        `gorm:"column:extracted_text"`
	KeyConcepts        pq.StringArray `gorm:"column:key_concepts;type:text[]"`
	LearningObjectives pq.StringArray `gorm:"column:learning_objectives;type:text[]"`
	DifficultyLevel    *string        `gorm:"column:difficulty_level"`
	WordCount          *int           `gorm:"column:word_count"`
	QualityScore       *float64       `gorm:"column:quality_score"`
	ModelUsed          *string        `gorm:"column:model_used"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
}
