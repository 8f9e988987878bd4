package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// Material is an uploaded course artifact.
type Material struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CourseID    *uuid.UUID     `gorm:"column:course_id;type:uuid"`
	UploadedBy  uuid.UUID      `gorm:"column:uploaded_by;type:uuid;not null;index"`
	Title       string         `gorm:"column:title;not null"`
	Description *string        `gorm:"column:description"`
	FileType    enums.FileType `gorm:"column:file_type;type:file_type;not null"`
	FileName    string         `gorm:"column:file_name;not null"`
	ContentType string         `gorm:"column:content_type;not null"`
	SizeBytes   int64          `gorm:"column:size_bytes;not null"`
	ObjectKey   string         `gorm:"column:object_key;not null;unique"`
	WeekNumber  *int           `gorm:"column:week_number"`
	Semester    string         `gorm:"column:semester;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}
