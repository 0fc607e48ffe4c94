// Package dedup caches which reports have already been published, sparing the
// knowledge base an entity lookup on every run. The cache is advisory: any
// Redis failure degrades to a miss and the authoritative lookup still runs.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/darc-connector/internal/config"
	"github.com/jonesrussell/darc-connector/internal/logger"
)

const keyPrefix = "darc:published:"

// Tracker remembers published report names in Redis with a TTL.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewTracker creates a tracker on a fresh Redis connection.
func NewTracker(cfg *config.RedisConfig, log logger.Logger) *Tracker {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Tracker{client: client, ttl: cfg.TTL, logger: log}
}

// HasPublished reports whether the report name is in the cache. Lookup
// failures are logged and treated as a miss.
func (t *Tracker) HasPublished(ctx context.Context, reportName string) bool {
	count, err := t.client.Exists(ctx, keyPrefix+reportName).Result()
	if err != nil {
		t.logger.Warn("dedup cache lookup failed",
			logger.String("report", reportName), logger.Error(err))
		return false
	}
	return count > 0
}

// MarkPublished records the report name. Failures are logged; the next run
// falls back to the knowledge-base lookup.
func (t *Tracker) MarkPublished(ctx context.Context, reportName string) {
	if err := t.client.Set(ctx, keyPrefix+reportName, 1, t.ttl).Err(); err != nil {
		t.logger.Warn("dedup cache write failed",
			logger.String("report", reportName), logger.Error(err))
	}
}

// Ping verifies the Redis connection.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (t *Tracker) Close() error {
	return t.client.Close()
}
