package mergelock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockConfig configures a distributedLock.
type LockConfig struct {
	// TTL before the lock is automatically released.
	TTL time.Duration

	// Retry settings for AcquireWithRetry.
	MaxRetries    int
	RetryInterval time.Duration

	// AcquireTimeout bounds each individual acquire attempt;
	// ReleaseTimeout bounds the release call.
	AcquireTimeout time.Duration
	ReleaseTimeout time.Duration

	// ValuePrefix tags the lock's generated value, useful when reading
	// raw keys back out of Redis during an incident.
	ValuePrefix string
}

// distributedLock is a Redis-backed mutual-exclusion lock scoped to one
// key, released via a compare-and-delete Lua script so a lock can only
// ever be freed by the holder that acquired it.
type distributedLock struct {
	redis    *redis.Client
	key      string
	value    string
	cfg      LockConfig
	logger   *slog.Logger
	acquired bool
}

// newDistributedLock builds an unacquired lock over key.
func newDistributedLock(redisClient *redis.Client, key string, cfg LockConfig, logger *slog.Logger) *distributedLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &distributedLock{
		redis:  redisClient,
		key:    key,
		value:  generateLockValue(cfg.ValuePrefix),
		cfg:    cfg,
		logger: logger,
	}
}

func generateLockValue(prefix string) string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(bytes))
}

// AcquireWithRetry attempts SET NX acquisition, retrying up to
// maxRetries times with a backing-off interval between attempts. A
// maxRetries of zero or less is treated as 3.
func (l *distributedLock) AcquireWithRetry(ctx context.Context, maxRetries int) (bool, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		acquireTimeout := l.cfg.AcquireTimeout
		if acquireTimeout <= 0 {
			acquireTimeout = l.cfg.TTL
		}
		acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
		result, err := l.redis.SetNX(acquireCtx, l.key, l.value, l.cfg.TTL).Result()
		cancel()
		if err != nil {
			l.logger.Error("failed to acquire merge lock", "key", l.key, "attempt", attempt+1, "error", err)
			if attempt == maxRetries {
				return false, fmt.Errorf("acquire lock after %d attempts: %w", maxRetries+1, err)
			}
			l.wait(attempt)
			continue
		}

		if result {
			l.acquired = true
			return true, nil
		}

		if attempt == maxRetries {
			return false, nil
		}
		l.wait(attempt)
	}

	return false, nil
}

func (l *distributedLock) wait(attempt int) {
	base := l.cfg.RetryInterval
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	time.Sleep(time.Duration(attempt+1) * base)
}

// Release frees the lock if this instance still holds it, via a
// compare-and-delete script so a lock whose TTL already expired and
// was re-acquired by someone else is never deleted out from under them.
func (l *distributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	releaseTimeout := l.cfg.ReleaseTimeout
	if releaseTimeout <= 0 {
		releaseTimeout = 2 * time.Second
	}
	releaseCtx, cancel := context.WithTimeout(ctx, releaseTimeout)
	defer cancel()

	result, err := l.redis.Eval(releaseCtx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	l.acquired = false
	if n, ok := result.(int64); !ok || n != 1 {
		l.logger.Warn("merge lock was not released (already expired or held by another node)", "key", l.key)
	}
	return nil
}
