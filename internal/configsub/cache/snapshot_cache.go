// Package cache provides a Redis-backed cache of the last-seen config
// snapshot identity per config source, shared across config agent
// instances running on different nodes so a cold agent can skip
// re-validating a generation another agent already accepted.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vespacore/servingcore/internal/core/resilience"
	"github.com/vespacore/servingcore/pkg/metrics"
)

// Entry is the cached record of a generation's identity.
type Entry struct {
	Generation   uint64 `json:"generation"`
	IdentityHash uint64 `json:"identity_hash"`
}

// SnapshotCache stores the last-known generation/identity pair per
// config-source key in Redis, with a TTL so a long-dead agent's record
// does not linger forever.
type SnapshotCache struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.CacheMetrics
	retry   *resilience.RetryPolicy
}

// NewSnapshotCache wraps an existing Backend (typically a
// *RedisBackend, via NewRedisBackend) with the config-agent's key/TTL
// conventions.
func NewSnapshotCache(backend Backend, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SnapshotCache{
		backend: backend,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics.DefaultRegistry().Cache(),
		retry: &resilience.RetryPolicy{
			MaxRetries:    2,
			BaseDelay:     20 * time.Millisecond,
			MaxDelay:      200 * time.Millisecond,
			Multiplier:    2.0,
			Jitter:        true,
			ErrorChecker:  &resilience.DefaultErrorChecker{},
			Logger:        logger,
			OperationName: "configsub_snapshot_cache",
		},
	}
}

func key(source string) string {
	return fmt.Sprintf("configsub:snapshot:%s", source)
}

// cacheMissIsFinal wraps the default checker so a plain "key not found"
// never burns a retry attempt; every other error is left to the default
// checker, which retries anything it does not recognise as non-retryable.
type cacheMissIsFinal struct{}

func (cacheMissIsFinal) IsRetryable(err error) bool {
	if IsNotFound(err) {
		return false
	}
	return (&resilience.DefaultErrorChecker{}).IsRetryable(err)
}

// Load returns the last cached entry for source, if any.
func (c *SnapshotCache) Load(ctx context.Context, source string) (Entry, bool) {
	policy := *c.retry
	policy.ErrorChecker = cacheMissIsFinal{}
	var entry Entry
	err := resilience.WithRetry(ctx, &policy, func() error {
		return c.backend.Get(ctx, key(source), &entry)
	})
	if err != nil {
		if IsNotFound(err) {
			c.metrics.MissesTotal.WithLabelValues("configsub_snapshot").Inc()
			return Entry{}, false
		}
		c.logger.Warn("snapshot cache load failed", "source", source, "error", err)
		c.metrics.ErrorsTotal.WithLabelValues("configsub_snapshot", "get").Inc()
		return Entry{}, false
	}
	c.metrics.HitsTotal.WithLabelValues("configsub_snapshot").Inc()
	return entry, true
}

// Store records the generation/identity pair for source, retrying a
// transient Redis failure before giving up.
func (c *SnapshotCache) Store(ctx context.Context, source string, entry Entry) error {
	err := resilience.WithRetry(ctx, c.retry, func() error {
		return c.backend.Set(ctx, key(source), entry, c.ttl)
	})
	if err != nil {
		c.logger.Warn("snapshot cache store failed", "source", source, "error", err)
		c.metrics.ErrorsTotal.WithLabelValues("configsub_snapshot", "set").Inc()
		return err
	}
	return nil
}
