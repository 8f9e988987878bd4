// Package idempotency dedupes at-least-once message deliveries.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the Redis subset a Guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard dedupes deliveries for one consumer. A delivery is claimed before
// it is handled; if handling fails with something worth retrying the claim
// is released so the redelivery runs again. Claims expire after ttl, which
// should outlive the broker's redelivery window.
type Guard struct {
	store Store
	scope string
	ttl   time.Duration
	now   func() time.Time
}

func NewGuard(store Store, consumer string, ttl time.Duration) (*Guard, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case ttl <= 0:
		return nil, errors.New("claim ttl must be positive")
	}
	return &Guard{store: store, scope: "consumer:" + consumer, ttl: ttl, now: time.Now}, nil
}

// Claim reports whether this call won messageID. false means an earlier
// delivery holds or completed it. The claim records when it was taken.
func (g *Guard) Claim(ctx context.Context, messageID string) (bool, error) {
	key, err := g.key(messageID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops the claim on messageID.
func (g *Guard) Release(ctx context.Context, messageID string) error {
	key, err := g.key(messageID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(messageID string) (string, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return "", errors.New("message id is required")
	}
	return g.store.IdempotencyKey(g.scope, messageID), nil
}
