package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// UsageCounter tracks consumption of one usage type for one period. The limit
// is captured when the row is first created and kept for the whole period.
type UsageCounter struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID        `gorm:"column:user_id;type:uuid;not null"`
	UsageType    string           `gorm:"column:usage_type;not null"`
	PeriodType   enums.PeriodType `gorm:"column:period_type;type:period_type;not null"`
	PeriodStart  time.Time        `gorm:"column:period_start;not null"`
	PeriodEnd    time.Time        `gorm:"column:period_end;not null"`
	CurrentCount int              `gorm:"column:current_count;not null;default:0"`
	LimitCount   int              `gorm:"column:limit_count;not null"`
	PlanCode     string           `gorm:"column:plan_code;not null"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
