//go:build integration
// +build integration

package quota

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"remindr/internal/domain"
)

func TestRedisCounterConsume(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, RedisOptions{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	c := &RedisCounter{Client: client, Prefix: "test_quota_" + time.Now().Format("150405.000000")}
	now := time.Now().UTC()
	require.NoError(t, c.OpenPeriod(ctx, domain.QuotaCounter{
		AccountID:   "acct",
		PeriodStart: now.Add(-time.Minute),
		PeriodEnd:   now.Add(time.Hour),
		Limit:       2,
	}))

	ok, used, err := c.Consume(ctx, "acct", 1, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, used)

	ok, _, err = c.Consume(ctx, "acct", 2, now)
	require.NoError(t, err)
	require.False(t, ok)

	ok, used, err = c.Consume(ctx, "acct", 1, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, used)

	left, err := c.Remaining(ctx, "acct", now)
	require.NoError(t, err)
	require.Equal(t, 0, left)

	ok, _, err = c.Consume(ctx, "missing", 1, now)
	require.NoError(t, err)
	require.False(t, ok)
}
