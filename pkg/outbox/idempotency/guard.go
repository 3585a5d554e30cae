// Package idempotency keeps at-least-once Pub/Sub delivery from applying an
// event twice. Markers live in Redis under
// bh:idempotency:evt:processed:<consumer>:<event_id>.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the subset of the Redis client the guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type Guard struct {
	store Store
	ttl   time.Duration
}

// NewGuard remembers handled events for ttl. A zero ttl keeps markers forever.
func NewGuard(store Store, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim marks the event as taken by consumer. It returns false when another
// delivery already claimed it.
func (g *Guard) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, "1", g.ttl)
}

// Release drops the marker so a redelivery is processed again.
func (g *Guard) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

// Do runs fn once per event. When fn fails the claim is released and fn's
// error returned, so the message can be nacked and retried. ran reports
// whether fn was invoked.
func (g *Guard) Do(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (ran bool, err error) {
	claimed, err := g.Claim(ctx, consumer, eventID)
	if err != nil || !claimed {
		return false, err
	}
	if err := fn(ctx); err != nil {
		if relErr := g.Release(context.WithoutCancel(ctx), consumer, eventID); relErr != nil {
			return true, errors.Join(err, relErr)
		}
		return true, err
	}
	return true, nil
}

func (g *Guard) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
