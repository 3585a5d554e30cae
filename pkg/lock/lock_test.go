package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	first, err := NewRedisLock(store, "bh:lock:test", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "bh:lock:test", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, store.ttls["bh:lock:test"])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "bh:lock:test", "non-owner release must not free the lock")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseAfterTakeoverKeepsNewOwner(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	stale, _ := NewRedisLock(store, "bh:lock:job", time.Minute)
	ok, _ := stale.Acquire(ctx)
	require.True(t, ok)

	// TTL lapses and another process takes the key.
	store.values["bh:lock:job"] = "other-owner"

	require.NoError(t, stale.Release(ctx))
	assert.Equal(t, "other-owner", store.values["bh:lock:job"])
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "key", time.Second)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryStore(), "", time.Second)
	assert.Error(t, err)

	l, err := NewRedisLock(newMemoryStore(), "key", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultTTL, l.ttl)
}

func TestWaitGivesUpWhenContextEnds(t *testing.T) {
	store := newMemoryStore()
	holder, _ := NewRedisLock(store, "bh:lock:busy", time.Minute)
	ok, _ := holder.Acquire(context.Background())
	require.True(t, ok)

	waiter, _ := NewRedisLock(store, "bh:lock:busy", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := Wait(ctx, waiter, time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitAcquiresOnceReleased(t *testing.T) {
	store := newMemoryStore()
	holder, _ := NewRedisLock(store, "bh:lock:busy", time.Minute)
	ok, _ := holder.Acquire(context.Background())
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = holder.Release(context.Background())
	}()

	waiter, _ := NewRedisLock(store, "bh:lock:busy", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, Wait(ctx, waiter, 0))
}

func TestFactoryBuildsIndependentLocks(t *testing.T) {
	factory, err := NewFactory(newMemoryStore(), time.Second)
	require.NoError(t, err)
	a, err := factory.For("bh:lock:rating-aggregate:a")
	require.NoError(t, err)
	b, err := factory.For("bh:lock:rating-aggregate:b")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, Wait(ctx, a, time.Millisecond))
	require.NoError(t, Wait(ctx, b, time.Millisecond))
}
