// Package mergelock issues per-bucket merge admission tokens backed by
// a Redis distributed lock, so that at most one node in a cluster runs
// a merge for a given bucket at a time even when multiple distributors
// race to schedule one.
package mergelock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the token manager. It embeds the local LockConfig
// since a merge token is, underneath, one distributed lock per bucket
// key.
type Config struct {
	LockConfig LockConfig
	KeyPrefix  string
}

// DefaultConfig returns a ten-second TTL, three retries, and the
// "distributor:merge" key namespace - generous enough to cover a typical bucket
// merge without holding the token indefinitely if a node dies mid-merge.
func DefaultConfig() Config {
	return Config{
		LockConfig: LockConfig{
			TTL:            10 * time.Second,
			MaxRetries:     3,
			RetryInterval:  200 * time.Millisecond,
			AcquireTimeout: 5 * time.Second,
			ReleaseTimeout: 2 * time.Second,
			ValuePrefix:    "merge",
		},
		KeyPrefix: "distributor:merge",
	}
}

// Token is an admitted merge's handle. It must be released exactly
// once, win or lose, or the lock's TTL is the only thing that frees
// the bucket for the next merge.
type Token struct {
	bucketKey string
	dlock     *distributedLock
}

// Manager issues and releases per-bucket merge tokens. Acquire builds
// one distributedLock per bucket rather than pooling them behind a
// shared registry, since callers here need to tell "lock already held
// by someone else" apart from "redis itself failed" (contention is
// routine and retried later; a broken Redis is an operational failure
// worth surfacing), and a per-bucket lock keeps that distinction local
// to the one call that can observe it.
type Manager struct {
	cfg    Config
	redis  *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]*Token
}

// NewManager builds a Manager over an existing Redis client.
func NewManager(redisClient *redis.Client, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, redis: redisClient, logger: logger, tokens: make(map[string]*Token)}
}

func (m *Manager) bucketKey(bucketHash uint64) string {
	return fmt.Sprintf("%s:%d", m.cfg.KeyPrefix, bucketHash)
}

// Acquire attempts to admit a merge for the given bucket. It returns
// ok=false (with a nil token and nil error) if another node currently
// holds the token for that bucket, rather than treating contention as
// an error - that is the expected steady-state outcome of two
// distributors racing to merge the same bucket. A non-nil error means
// the attempt itself failed (e.g. Redis unreachable).
func (m *Manager) Acquire(ctx context.Context, bucketHash uint64) (tok *Token, ok bool, err error) {
	key := m.bucketKey(bucketHash)
	dlock := newDistributedLock(m.redis, key, m.cfg.LockConfig, m.logger)

	acquired, err := dlock.AcquireWithRetry(ctx, m.cfg.LockConfig.MaxRetries)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}

	t := &Token{bucketKey: key, dlock: dlock}
	m.mu.Lock()
	m.tokens[key] = t
	m.mu.Unlock()
	return t, true, nil
}

// Release frees the token, making the bucket eligible for the next
// merge admission.
func (m *Manager) Release(ctx context.Context, tok *Token) error {
	if tok == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.tokens, tok.bucketKey)
	m.mu.Unlock()
	return tok.dlock.Release(ctx)
}

// Close releases every outstanding token, for use during shutdown.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	tokens := make([]*Token, 0, len(m.tokens))
	for _, t := range m.tokens {
		tokens = append(tokens, t)
	}
	m.tokens = make(map[string]*Token)
	m.mu.Unlock()

	var lastErr error
	for _, t := range tokens {
		if err := t.dlock.Release(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
