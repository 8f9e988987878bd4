package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/db/models"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/metrics"
	"github.com/mivahub/mivahub-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	sendTimeout        = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type rowStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type rowDecoder interface {
	Decode(models.OutboxEvent) (*registry.Decoded, error)
}

// sender publishes one message and waits for the broker to accept it.
type sender interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

type RelayParams struct {
	Config  config.OutboxConfig
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics
	DB      txRunner
	Rows    rowStore
	Catalog rowDecoder
	Sender  sender
}

// Relay drains outbox_events to Pub/Sub. Each batch is claimed and settled
// in one transaction. A row that cannot be decoded, or that runs out of
// attempts, is parked: attempt_count is pinned at the ceiling and the row
// stays in the table with last_error for inspection.
type Relay struct {
	logg        *logger.Logger
	metrics     *metrics.PipelineMetrics
	db          txRunner
	rows        rowStore
	catalog     rowDecoder
	sender      sender
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case p.Catalog == nil:
		return nil, errors.New("event catalog is required")
	case p.Sender == nil:
		return nil, errors.New("pubsub sender is required")
	}
	r := &Relay{
		logg:        p.Logger,
		metrics:     p.Metrics,
		db:          p.DB,
		rows:        p.Rows,
		catalog:     p.Catalog,
		sender:      p.Sender,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		poll:        defaultPoll,
	}
	if p.Config.BatchSize > 0 {
		r.batchSize = p.Config.BatchSize
	}
	if p.Config.MaxAttempts > 0 {
		r.maxAttempts = p.Config.MaxAttempts
	}
	if p.Config.PollIntervalMS > 0 {
		r.poll = time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	}
	return r, nil
}

// Run polls until ctx is canceled. A non-empty batch is followed at once by
// another; failed batches back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.sender.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := newBackoff(r.poll, maxBackoff, jitterWindow)
	for {
		n, err := r.drain(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.logg.Error(ctx, "outbox.batch.failed", err)
			if err := sleepCtx(ctx, wait.fail()); err != nil {
				return err
			}
		case n > 0:
			wait.reset()
		default:
			wait.reset()
			if err := sleepCtx(ctx, wait.idle()); err != nil {
				return err
			}
		}
	}
}

// drain claims one batch and settles every row in it, returning how many
// rows it saw. It only fails when row state could not be written.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var seen int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		seen = len(rows)
		for _, row := range rows {
			if err := r.settle(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return seen, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	decoded, err := r.catalog.Decode(row)
	if err != nil {
		return r.park(ctx, tx, row, "", err)
	}

	sendErr := r.send(ctx, row, decoded)
	switch {
	case sendErr == nil:
		if err := r.rows.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.metrics.IncOutboxPublish(string(row.EventType), metrics.OutboxPublished)
		r.logg.Debug(r.logg.WithFields(ctx, rowFields(row, decoded.Topic)), "outbox.published")
		return nil
	case registry.IsPermanent(sendErr):
		return r.park(ctx, tx, row, decoded.Topic, sendErr)
	case row.AttemptCount+1 >= r.maxAttempts:
		return r.park(ctx, tx, row, decoded.Topic, fmt.Errorf("giving up after %d attempts: %w", row.AttemptCount+1, sendErr))
	}

	fields := rowFields(row, decoded.Topic)
	fields["attempt"] = row.AttemptCount + 1
	fields["error"] = sendErr.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.retry")
	if err := r.rows.MarkFailedTx(tx, row.ID, sendErr); err != nil {
		return fmt.Errorf("mark %s failed: %w", row.ID, err)
	}
	r.metrics.IncOutboxPublish(string(row.EventType), metrics.OutboxRetry)
	return nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, topic string, cause error) error {
	fields := rowFields(row, topic)
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.parked")
	if err := r.rows.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", row.ID, err)
	}
	r.metrics.IncOutboxPublish(string(row.EventType), metrics.OutboxTerminal)
	return nil
}

// send publishes the stored envelope as-is; the attributes repeat the
// routing fields so subscribers can filter without decoding the body.
func (r *Relay) send(ctx context.Context, row models.OutboxEvent, decoded *registry.Decoded) error {
	env := decoded.Envelope
	attrs := map[string]string{
		"event_id":       env.EventID.String(),
		"event_type":     string(row.EventType),
		"schema":         strconv.Itoa(env.Schema),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if env.RequestID != "" {
		attrs["request_id"] = env.RequestID
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err := r.sender.Send(sendCtx, decoded.Topic, &gcppubsub.Message{
		Data:       row.Payload,
		Attributes: attrs,
	})
	return err
}

func rowFields(row models.OutboxEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   string(row.EventType),
		"aggregate_id": row.AggregateID.String(),
		"attempts":     row.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return fields
}
