// Package ratelimit enforces per-tenant hourly request quotas in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

const (
	DefaultPerHour = 100
	window         = time.Hour
)

type Result struct {
	Allowed   bool `json:"allowed"`
	Current   int  `json:"current"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

type Status struct {
	CurrentRequestsThisHour int `json:"current_requests_this_hour"`
	LimitPerHour            int `json:"limit_per_hour"`
	Remaining               int `json:"remaining"`
}

// Limiter counts requests in fixed UTC hour buckets.
type Limiter struct {
	client *redisv9.Client
	limit  int
	now    func() time.Time
}

func New(client *redisv9.Client, perHour int) *Limiter {
	if perHour <= 0 {
		perHour = DefaultPerHour
	}
	return &Limiter{client: client, limit: perHour, now: time.Now}
}

func (l *Limiter) key(tenantID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", tenantID, l.now().UTC().Format("2006010215"))
}

// Allow increments the tenant's counter for the current hour.
func (l *Limiter) Allow(ctx context.Context, tenantID string) (Result, error) {
	key := l.key(tenantID)
	current, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis incr rate limit failed: %w", err)
	}
	if current == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return Result{}, fmt.Errorf("redis expire rate limit failed: %w", err)
		}
	}
	return Result{
		Allowed:   int(current) <= l.limit,
		Current:   int(current),
		Limit:     l.limit,
		Remaining: max(0, l.limit-int(current)),
	}, nil
}

// Status reads the counter without incrementing it.
func (l *Limiter) Status(ctx context.Context, tenantID string) (Status, error) {
	current, err := l.client.Get(ctx, l.key(tenantID)).Int()
	if err != nil && !errors.Is(err, redisv9.Nil) {
		return Status{}, fmt.Errorf("redis get rate limit failed: %w", err)
	}
	return Status{
		CurrentRequestsThisHour: current,
		LimitPerHour:            l.limit,
		Remaining:               max(0, l.limit-current),
	}, nil
}
