package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, perHour int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := New(client, perHour)
	l.now = func() time.Time { return time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC) }
	return l, mr
}

func TestAllowCountsAndBlocks(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, 3)

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, i, res.Current)
		assert.Equal(t, 3-i, res.Remaining)
	}
	res, err := l.Allow(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	assert.Equal(t, time.Hour, mr.TTL("ratelimit:t1:2024050114"))

	other, err := l.Allow(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestStatusDoesNotIncrement(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, 100)

	st, err := l.Status(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, Status{CurrentRequestsThisHour: 0, LimitPerHour: 100, Remaining: 100}, st)

	_, err = l.Allow(ctx, "t1")
	require.NoError(t, err)
	_, err = l.Allow(ctx, "t1")
	require.NoError(t, err)

	st, err = l.Status(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentRequestsThisHour)
	st, err = l.Status(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 98, st.Remaining)
}

func TestNewHourResetsWindow(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, 1)

	res, err := l.Allow(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	l.now = func() time.Time { return time.Date(2024, 5, 1, 15, 0, 1, 0, time.UTC) }
	res, err = l.Allow(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Current)
}

func TestAllowBackendError(t *testing.T) {
	l, mr := newTestLimiter(t, 1)
	mr.SetError("READONLY")
	_, err := l.Allow(context.Background(), "t1")
	assert.Error(t, err)
}
