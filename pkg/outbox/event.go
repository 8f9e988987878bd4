package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// SchemaVersion is stamped on every envelope this build writes.
const SchemaVersion = 1

// Event is a domain fact queued for publication once the surrounding
// transaction commits. The aggregate type follows from Type.
type Event struct {
	Type        enums.OutboxEventType
	AggregateID uuid.UUID
	OccurredAt  time.Time
	Payload     any
}

// Envelope is the document stored in outbox_events.payload and published
// verbatim as the message body. EventID is also the outbox row id, so
// consumers can dedupe on it.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	Schema     int             `json:"schema"`
	OccurredAt time.Time       `json:"occurred_at"`
	RequestID  string          `json:"request_id,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// HasData reports whether the envelope carries a non-null payload.
func (e Envelope) HasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// OpenEnvelope decodes a stored envelope.
func OpenEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Schema == 0 {
		return Envelope{}, fmt.Errorf("envelope missing schema version")
	}
	return env, nil
}
