package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

const (
	queryKeyPrefix  = "query"
	fingerprintSize = 16
	DefaultQueryTTL = time.Hour
)

// QueryCache stores answer payloads per (tenant, question) in Redis.
type QueryCache struct {
	client *redisv9.Client
}

func NewQueryCache(client *redisv9.Client) *QueryCache {
	return &QueryCache{client: client}
}

// Fingerprint returns query:{tenant}:{first 16 hex chars of sha256(question)}.
func Fingerprint(tenantID, question string) string {
	sum := sha256.Sum256([]byte(question))
	return fmt.Sprintf("%s:%s:%s", queryKeyPrefix, tenantID, hex.EncodeToString(sum[:])[:fingerprintSize])
}

// Get decodes the cached payload into out. A miss reports false with a nil error.
func (c *QueryCache) Get(ctx context.Context, tenantID, question string, out any) (bool, error) {
	raw, err := c.client.Get(ctx, Fingerprint(tenantID, question)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get query cache failed: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal cached query failed: %w", err)
	}
	return true, nil
}

func (c *QueryCache) Put(ctx context.Context, tenantID, question string, payload any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal query cache failed: %w", err)
	}
	if err := c.client.Set(ctx, Fingerprint(tenantID, question), body, ttl).Err(); err != nil {
		return fmt.Errorf("redis set query cache failed: %w", err)
	}
	return nil
}
