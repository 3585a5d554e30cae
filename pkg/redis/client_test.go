package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bidhaven-backend/pkg/config"
)

func TestKeyLayout(t *testing.T) {
	var c Client
	assert.Equal(t, "bh:idempotency:evt:processed:ratings:e1", c.IdempotencyKey("evt:processed:ratings", "e1"))
	assert.Equal(t, "bh:lock:rating-aggregate:u1", c.LockKey("rating-aggregate", " u1 "))
	assert.Equal(t, "bh:watch:listing:abc", c.WatchChannel("abc"))
	assert.Equal(t, "bh:lock:cron", c.LockKey("cron", ""))
}

func TestOptionsPreferURLAndFillPool(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:         "redis://:pw@cache:6380/3",
		Address:     "ignored:6379",
		PoolSize:    20,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
}

func TestOptionsFromAddress(t *testing.T) {
	opts, err := options(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	_, err = options(config.RedisConfig{})
	assert.Error(t, err)
	_, err = options(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}

func TestUnconnectedClient(t *testing.T) {
	ctx := context.Background()
	var c *Client
	assert.ErrorIs(t, c.Ping(ctx), errNotConnected)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, errNotConnected)
	_, err = c.DeleteIfValue(ctx, "k", "v")
	assert.ErrorIs(t, err, errNotConnected)
	_, _, err = c.Subscribe(ctx, "bh:watch:listing:x")
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, c.Close())
}
