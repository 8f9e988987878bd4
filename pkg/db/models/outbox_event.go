package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// OutboxEvent is one queued domain event. Only the publish bookkeeping
// columns (attempt_count, last_error, published_at) change after insert.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`

	AttemptCount int        `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string    `gorm:"column:last_error"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Published reports whether the row has been delivered.
func (e OutboxEvent) Published() bool { return e.PublishedAt != nil }
