package results

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
	"github.com/mivahub/mivahub-backend/pkg/outbox/registry"
)

// ConsumerName scopes the dedup keys of the results consumer.
const ConsumerName = "job-results"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// claimer dedupes redeliveries; see idempotency.Guard.
type claimer interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// Consumer reads worker results from Pub/Sub and applies them to the ledger.
type Consumer struct {
	subscription receiver
	decoders     *registry.Decoders
	applier      *Applier
	claims       claimer
	logg         *logger.Logger
}

// NewConsumer builds the results consumer.
func NewConsumer(subscription receiver, applier *Applier, claims claimer, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("results subscription required")
	}
	if applier == nil {
		return nil, fmt.Errorf("result applier required")
	}
	if claims == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := registry.NewDecoders()
	if err := RegisterDecoders(decoders); err != nil {
		return nil, err
	}
	return &Consumer{
		subscription: subscription,
		decoders:     decoders,
		applier:      applier,
		claims:       claims,
		logg:         logg,
	}, nil
}

// Run receives until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked. Undecodable messages
// and results the ledger refuses are acked; only dependency failures nack.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	messageType := msg.Attributes["message_type"]
	if messageType == "" {
		messageType = MessageType
	}
	version := MessageVersion
	if raw := strings.TrimSpace(msg.Attributes["version"]); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "message_id", msg.ID), "invalid result message version")
			return true
		}
		version = parsed
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id":   msg.ID,
		"message_type": messageType,
		"version":      version,
	})

	decoded, err := c.decoders.Decode(messageType, version, msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode result message", err)
		return true
	}
	result, ok := decoded.(Result)
	if !ok {
		c.logg.Error(logCtx, "unexpected decoded result type", fmt.Errorf("%T", decoded))
		return true
	}
	logCtx = c.logg.WithJobID(logCtx, result.JobID.String())

	won, err := c.claims.Claim(ctx, msg.ID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if !won {
		c.logg.Info(logCtx, "result already processed")
		return true
	}

	job, err := c.applier.Apply(ctx, result)
	if err != nil {
		if retryable(err) {
			c.logg.Error(logCtx, "applying job result failed", err)
			if delErr := c.claims.Release(ctx, msg.ID); delErr != nil {
				c.logg.Error(logCtx, "failed to release idempotency key", delErr)
			}
			return false
		}
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "job result rejected")
		return true
	}
	c.logg.Info(c.logg.WithField(logCtx, "status", string(job.Status)), "job result applied")
	return true
}

func retryable(err error) bool {
	if registry.IsPermanent(err) {
		return false
	}
	return pkgerrors.Retryable(err)
}
