// Package ratelimit enforces a minimum interval between submissions.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"zentoso/backend/internal/cache"
)

const DefaultWindow = 60 * time.Second

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Cooldown allows one recorded event per key per window. Check never records;
// callers Record only after the guarded action succeeded.
type Cooldown struct {
	clock  Clock
	store  cache.TimestampStore
	window time.Duration
	prefix string
}

func NewCooldown(store cache.TimestampStore, clock Clock, window time.Duration, prefix string) *Cooldown {
	if store == nil {
		store = cache.NewMemoryTimestampStore()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cooldown{clock: clock, store: store, window: window, prefix: prefix}
}

func (c *Cooldown) Window() time.Duration {
	return c.window
}

// Check reports whether an event for key is allowed now.
func (c *Cooldown) Check(ctx context.Context, key string) (bool, error) {
	remaining, err := c.remaining(ctx, key)
	if err != nil {
		return false, err
	}
	return remaining <= 0, nil
}

func (c *Cooldown) Record(ctx context.Context, key string) error {
	if err := c.store.Set(ctx, c.prefix+key, c.clock.Now(), c.window); err != nil {
		return fmt.Errorf("record cooldown: %w", err)
	}
	return nil
}

// Remaining is the wait in whole seconds, rounded up. 0 means allowed.
func (c *Cooldown) Remaining(ctx context.Context, key string) (int, error) {
	remaining, err := c.remaining(ctx, key)
	if err != nil || remaining <= 0 {
		return 0, err
	}
	return int(math.Ceil(remaining.Seconds())), nil
}

func (c *Cooldown) remaining(ctx context.Context, key string) (time.Duration, error) {
	last, ok, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		return 0, fmt.Errorf("read cooldown: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return c.window - c.clock.Now().Sub(last), nil
}
