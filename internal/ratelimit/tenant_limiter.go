package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/postdeskhq/postdesk/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyTenantWrites = "ratelimit:tenant:%s"

// TenantLimiter throttles mutating requests per tenant. A nil limiter (redis
// not configured or limiting disabled) allows everything.
type TenantLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewTenantLimiter(cfg config.Config) (*TenantLimiter, error) {
	if !cfg.RateLimitEnabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("rate limiting enabled but REDIS_ADDR is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rate limit redis ping: %w", err)
	}

	return &TenantLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimitRate,
		burst:  cfg.RateLimitBurst,
	}, nil
}

func (l *TenantLimiter) Allow(ctx context.Context, tenantID snowflake.ID) (*Result, error) {
	if l == nil || l.bucket == nil {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyTenantWrites, tenantID)
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
