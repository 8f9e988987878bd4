package main

import (
	"context"
	"math/rand/v2"
	"time"
)

// backoff doubles the wait after each failed batch, up to ceiling, and adds
// up to jitter of random delay so replicas drift apart.
type backoff struct {
	base    time.Duration
	ceiling time.Duration
	jitter  time.Duration
	current time.Duration
}

func newBackoff(base, ceiling, jitter time.Duration) *backoff {
	return &backoff{base: base, ceiling: ceiling, jitter: jitter, current: base}
}

func (b *backoff) reset() { b.current = b.base }

// fail grows the delay and returns the next wait.
func (b *backoff) fail() time.Duration {
	b.current = min(max(b.current, b.base)*2, b.ceiling)
	return b.withJitter(b.current)
}

// idle returns the wait before polling an empty table.
func (b *backoff) idle() time.Duration {
	return b.withJitter(b.base)
}

func (b *backoff) withJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + rand.N(b.jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
