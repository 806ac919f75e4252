package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func newTestCache(t *testing.T) (*QueryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueryCache(client), mr
}

func TestFingerprint(t *testing.T) {
	key := Fingerprint("org-123", "What is the return policy?")
	assert.True(t, strings.HasPrefix(key, "query:org-123:"))
	assert.Len(t, strings.TrimPrefix(key, "query:org-123:"), 16)

	assert.Equal(t, key, Fingerprint("org-123", "What is the return policy?"))
	assert.NotEqual(t, key, Fingerprint("org-456", "What is the return policy?"))
	assert.NotEqual(t, key, Fingerprint("org-123", "What is the refund policy?"))
}

func TestFingerprintKnownValue(t *testing.T) {
	// sha256("hello") = 2cf24dba5fb0a30e26e83b2ac5b9e29e...
	assert.Equal(t, "query:t1:2cf24dba5fb0a30e", Fingerprint("t1", "hello"))
}

func TestQueryCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var got payload
	hit, err := c.Get(ctx, "t1", "q", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	want := payload{Answer: "42 [1]", Sources: []string{"chunk"}}
	require.NoError(t, c.Put(ctx, "t1", "q", want, time.Minute))

	hit, err = c.Get(ctx, "t1", "q", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)

	hit, err = c.Get(ctx, "t2", "q", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestQueryCacheExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "t1", "q", payload{Answer: "a"}, 0))
	assert.Equal(t, DefaultQueryTTL, mr.TTL(Fingerprint("t1", "q")))

	mr.FastForward(DefaultQueryTTL + time.Second)

	var got payload
	hit, err := c.Get(ctx, "t1", "q", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestQueryCacheBackendError(t *testing.T) {
	c, mr := newTestCache(t)
	mr.SetError("LOADING")

	var got payload
	_, err := c.Get(context.Background(), "t1", "q", &got)
	assert.Error(t, err)
	assert.Error(t, c.Put(context.Background(), "t1", "q", payload{}, time.Minute))
}
