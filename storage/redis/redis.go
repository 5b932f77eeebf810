// Package redis provides a Redis-backed reconcile.EventDeduper. SET NX with
// a TTL marks event ids atomically across webhook consumer instances, so a
// redelivery landing on a different instance is still short-circuited.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper implements reconcile.EventDeduper using Redis
type Deduper struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis deduper configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "billsync:event:")
	KeyPrefix string

	// TTL is how long processed event ids are remembered (default: 24h,
	// matching the provider's redelivery window)
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "billsync:event:",
		TTL:       24 * time.Hour,
	}
}

// New creates a new Redis deduper
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Deduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "billsync:event:"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}

	return &Deduper{client: client, config: config}, nil
}

// Seen implements reconcile.EventDeduper. The SET NX is the atomic
// mark-and-test: exactly one caller per event id within the TTL observes
// false.
func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.config.KeyPrefix+eventID, 1, d.config.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event id: %w", err)
	}
	return !ok, nil
}
