package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	"github.com/mivahub/mivahub-backend/pkg/outbox"
	"github.com/mivahub/mivahub-backend/pkg/outbox/payloads"
)

type route struct {
	topic   string
	newData func() any
}

// Decoded is an outbox row whose envelope and payload have been checked
// against the catalog.
type Decoded struct {
	Topic    string
	Envelope outbox.Envelope
	Data     any
}

// Catalog maps every outbox event type to the topic it is published on and
// the payload shape it must carry.
type Catalog struct {
	routes map[enums.OutboxEventType]route
}

// NewCatalog builds the catalog for the configured topics.
func NewCatalog(cfg config.PubSubConfig) (*Catalog, error) {
	if cfg.JobEventsTopic == "" {
		return nil, errors.New("job events topic is required")
	}
	c := &Catalog{routes: make(map[enums.OutboxEventType]route)}
	c.add(enums.EventMaterialUploaded, cfg.JobEventsTopic, func() any { return new(payloads.MaterialUploadedEvent) })
	c.add(enums.EventJobDispatched, cfg.JobEventsTopic, func() any { return new(payloads.JobDispatchedEvent) })
	c.add(enums.EventJobCompleted, cfg.JobEventsTopic, func() any { return new(payloads.JobCompletedEvent) })
	c.add(enums.EventJobFailed, cfg.JobEventsTopic, func() any { return new(payloads.JobFailedEvent) })
	return c, nil
}

func (c *Catalog) add(eventType enums.OutboxEventType, topic string, newData func() any) {
	c.routes[eventType] = route{topic: topic, newData: newData}
}

// Topics returns the distinct topics the catalog publishes to, sorted.
func (c *Catalog) Topics() []string {
	topics := make([]string, 0, len(c.routes))
	for _, r := range c.routes {
		if !slices.Contains(topics, r.topic) {
			topics = append(topics, r.topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Decode checks the row and decodes its payload. Every error it returns is
// permanent: the row will not decode any better on the next attempt.
func (c *Catalog) Decode(row models.OutboxEvent) (*Decoded, error) {
	r, ok := c.routes[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %q", row.EventType))
	}
	if want := row.EventType.Aggregate(); row.AggregateType != want {
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row says %s", row.EventType, want, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(fmt.Errorf("%s row %s has no aggregate id", row.EventType, row.ID))
	}

	env, err := outbox.OpenEnvelope(row.Payload)
	if err != nil {
		return nil, Permanent(err)
	}
	if !env.HasData() {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", row.EventType))
	}
	data := r.newData()
	if err := json.Unmarshal(env.Data, data); err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}
	return &Decoded{Topic: r.topic, Envelope: env, Data: data}, nil
}
