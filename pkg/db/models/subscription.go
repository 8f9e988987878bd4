package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// Subscription binds a user to a plan for [PeriodStart, PeriodEnd).
type Subscription struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID      uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	Status      enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	PeriodStart time.Time                `gorm:"column:period_start;not null"`
	PeriodEnd   time.Time                `gorm:"column:period_end;not null"`
	CanceledAt  *time.Time               `gorm:"column:canceled_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
