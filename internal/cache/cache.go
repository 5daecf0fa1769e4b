package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned when a key is absent (or no Redis is configured).
var ErrMiss = errors.New("cache miss")

const allListingKey = "bucket:listing:all"

// OwnerKey returns the cache key for an owner's listing.
func OwnerKey(ownerID string) string {
	return "bucket:listing:owner:" + ownerID
}

// AllKey returns the cache key for the public listing.
func AllKey() string {
	return allListingKey
}

// NewRedis returns a configured Redis client, verifying connectivity.
func NewRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// Listing caches serialized listing payloads. A nil client degrades to
// cache misses and no-op writes, so the rest of the system never has to
// know whether Redis is configured.
type Listing struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewListing constructs the listing cache. client may be nil.
func NewListing(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Listing {
	return &Listing{client: client, logger: logger, ttl: ttl}
}

// Get retrieves and unmarshals the cached value into dest.
func (c *Listing) Get(ctx context.Context, key string, dest any) error {
	if c == nil || c.client == nil {
		return ErrMiss
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set marshals and stores the value under the configured TTL.
func (c *Listing) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateOwner drops the owner's listing along with the public one.
// It is fire-and-forget: failures are logged, never propagated.
func (c *Listing) InvalidateOwner(ctx context.Context, ownerID string) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Del(ctx, OwnerKey(ownerID), allListingKey).Err(); err != nil {
		c.logger.Warn("listing cache invalidation failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	}
}
