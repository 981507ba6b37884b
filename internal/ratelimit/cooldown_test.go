package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"zentoso/backend/internal/cache"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCooldown() (*Cooldown, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewCooldown(cache.NewMemoryTimestampStore(), clock, DefaultWindow, "submit:"), clock
}

func TestFirstSubmissionIsAllowed(t *testing.T) {
	cd, _ := newTestCooldown()
	ok, err := cd.Check(context.Background(), "user-1")
	if err != nil || !ok {
		t.Fatalf("expected allowed, got ok=%t err=%v", ok, err)
	}
	remaining, _ := cd.Remaining(context.Background(), "user-1")
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}
}

func TestSecondSubmissionAfterTenSecondsIsRejected(t *testing.T) {
	ctx := context.Background()
	cd, clock := newTestCooldown()

	if err := cd.Record(ctx, "user-1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	clock.Advance(10 * time.Second)

	ok, err := cd.Check(ctx, "user-1")
	if err != nil || ok {
		t.Fatalf("expected rejection, got ok=%t err=%v", ok, err)
	}
	remaining, err := cd.Remaining(ctx, "user-1")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 50 {
		t.Fatalf("expected 50 seconds remaining, got %d", remaining)
	}
}

func TestRemainingRoundsUp(t *testing.T) {
	ctx := context.Background()
	cd, clock := newTestCooldown()

	_ = cd.Record(ctx, "user-1")
	clock.Advance(59*time.Second + 100*time.Millisecond)

	remaining, _ := cd.Remaining(ctx, "user-1")
	if remaining != 1 {
		t.Fatalf("expected 1 second remaining, got %d", remaining)
	}
}

func TestSubmissionAfterWindowIsAllowed(t *testing.T) {
	ctx := context.Background()
	cd, clock := newTestCooldown()

	_ = cd.Record(ctx, "user-1")
	clock.Advance(61 * time.Second)

	ok, err := cd.Check(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("expected allowed after window, got ok=%t err=%v", ok, err)
	}
}

func TestWindowBoundaryIsAllowed(t *testing.T) {
	ctx := context.Background()
	cd, clock := newTestCooldown()

	_ = cd.Record(ctx, "user-1")
	clock.Advance(DefaultWindow)

	if ok, _ := cd.Check(ctx, "user-1"); !ok {
		t.Fatalf("expected allowed exactly at window")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	cd, _ := newTestCooldown()

	_ = cd.Record(ctx, "user-1")
	if ok, _ := cd.Check(ctx, "user-2"); !ok {
		t.Fatalf("expected other key to be allowed")
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	cd, _ := newTestCooldown()

	for i := 0; i < 3; i++ {
		if ok, _ := cd.Check(ctx, "user-1"); !ok {
			t.Fatalf("check %d: expected allowed", i)
		}
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("store down")
}

func (failingStore) Set(context.Context, string, time.Time, time.Duration) error {
	return errors.New("store down")
}

func TestStoreErrorsSurface(t *testing.T) {
	cd := NewCooldown(failingStore{}, nil, 0, "")
	if _, err := cd.Check(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected check error")
	}
	if err := cd.Record(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected record error")
	}
}
