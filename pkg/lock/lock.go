// Package lock provides owner-tagged Redis locks: SET NX PX to take, and an
// atomic compare-and-delete to give back, so a holder whose TTL lapsed can
// never release someone else's lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTTL  = 25 * time.Hour
	minInterval = 10 * time.Millisecond
	maxInterval = 250 * time.Millisecond
)

// ErrNotAcquired is returned by Wait when the context ends before the lock frees up.
var ErrNotAcquired = errors.New("lock not acquired")

// Lock coordinates exclusive work across processes.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Store is the Redis surface a lock needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

type RedisLock struct {
	store Store
	key   string
	ttl   time.Duration
	owner string
}

// NewRedisLock guards key. ttl <= 0 uses a 25h default sized for daily jobs.
func NewRedisLock(store Store, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store required")
	case key == "":
		return nil, errors.New("lock key required")
	case ttl <= 0:
		ttl = defaultTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Key() string { return l.key }

// Acquire takes the lock for ttl under a fresh owner token.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = token
	}
	return ok, nil
}

// Release is a no-op unless this lock still owns the key.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	if _, err := l.store.DeleteIfValue(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.owner = ""
	return nil
}

// Wait retries Acquire with a doubling delay, capped at 250ms, until it
// succeeds or ctx ends. interval seeds the first delay.
func Wait(ctx context.Context, l Lock, interval time.Duration) error {
	delay := max(interval, minInterval)
	for {
		ok, err := l.Acquire(ctx)
		switch {
		case err != nil:
			return err
		case ok:
			return nil
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %w", ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
		delay = min(delay*2, maxInterval)
	}
}

// Factory mints locks that share a store and TTL.
type Factory struct {
	store Store
	ttl   time.Duration
}

func NewFactory(store Store, ttl time.Duration) (*Factory, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	return &Factory{store: store, ttl: ttl}, nil
}

// For returns a fresh lock guarding key.
func (f *Factory) For(key string) (Lock, error) {
	return NewRedisLock(f.store, key, f.ttl)
}
