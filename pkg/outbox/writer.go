package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

// ErrNoTransaction is returned when Emit is called outside a transaction.
var ErrNoTransaction = errors.New("outbox: transaction required")

// Emitter queues events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event Event) error
}

// Writer is the Emitter backed by the outbox_events table.
type Writer struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewWriter(repo *Repository, logg *logger.Logger) *Writer {
	return &Writer{repo: repo, logg: logg, now: time.Now}
}

// Emit inserts the event with tx, so the row commits or rolls back with the
// state change it describes. The request id on ctx, if any, is carried in
// the envelope.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return ErrNoTransaction
	}
	if !event.Type.IsValid() {
		return fmt.Errorf("outbox: unknown event type %q", event.Type)
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("outbox: %s without aggregate id", event.Type)
	}

	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("outbox: encode %s payload: %w", event.Type, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = w.now()
	}
	env := Envelope{
		EventID:    uuid.New(),
		Schema:     SchemaVersion,
		OccurredAt: occurred.UTC(),
		RequestID:  logger.RequestIDFromContext(ctx),
		Data:       data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("outbox: encode envelope: %w", err)
	}

	if err := w.repo.Insert(tx, models.OutboxEvent{
		ID:            env.EventID,
		EventType:     event.Type,
		AggregateType: event.Type.Aggregate(),
		AggregateID:   event.AggregateID,
		Payload:       body,
	}); err != nil {
		return fmt.Errorf("outbox: queue %s: %w", event.Type, err)
	}

	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID.String(),
			"event_type":   string(event.Type),
			"aggregate_id": event.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}
