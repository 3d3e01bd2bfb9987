package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/subletsquare/lease-escrow-service/internal/model"
)

type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// LeaseCache absorbs the polling load of the reader. The chain stays
// authoritative: entries carry a short TTL and are dropped as soon as a
// write for the account is confirmed.
type LeaseCache struct {
	redis RedisClient
	ttl   time.Duration
}

func NewLeaseCache(addr string, ttl time.Duration) *LeaseCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "",
		DB:       0,
	})
	return &LeaseCache{redis: rdb, ttl: ttl}
}

func (c *LeaseCache) Close() error {
	return c.redis.Close()
}

func cacheKey(role, address string) string {
	return fmt.Sprintf("leases:%s:%s", role, address)
}

// Get returns the cached leases for an account and role, if present.
func (c *LeaseCache) Get(ctx context.Context, role, address string) ([]model.Lease, bool) {
	raw, err := c.redis.Get(ctx, cacheKey(role, address)).Result()
	if err != nil {
		return nil, false
	}
	var leases []model.Lease
	if err := json.Unmarshal([]byte(raw), &leases); err != nil {
		log.Warn().Err(err).Str("role", role).Msg("Dropping undecodable lease cache entry")
		c.redis.Del(ctx, cacheKey(role, address))
		return nil, false
	}
	return leases, true
}

// Set stores the leases for an account and role.
func (c *LeaseCache) Set(ctx context.Context, role, address string, leases []model.Lease) {
	raw, err := json.Marshal(leases)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode leases for cache")
		return
	}
	if err := c.redis.SetEx(ctx, cacheKey(role, address), raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to cache leases")
	}
}

// Invalidate drops both role entries for an account, typically after a write
// touching it was confirmed.
func (c *LeaseCache) Invalidate(ctx context.Context, address string) {
	if err := c.redis.Del(ctx, cacheKey("tenant", address), cacheKey("owner", address)).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate lease cache")
	}
}
