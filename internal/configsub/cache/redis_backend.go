package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is the key/value store a SnapshotCache sits on top of.
// RedisBackend is the only production implementation; tests substitute
// their own to inject failures.
type Backend interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// BackendError reports a backend failure tagged with a code, so callers
// can tell "key absent" apart from "connection broke" without
// string-matching messages.
type BackendError struct {
	Message string
	Code    string
	Cause   error
}

func (e *BackendError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *BackendError) Unwrap() error { return e.Cause }

// ErrNotFound is returned when a key is absent from the backend.
var ErrNotFound = &BackendError{Message: "key not found", Code: "NOT_FOUND"}

// IsNotFound reports whether err is a "key not found" backend error.
func IsNotFound(err error) bool {
	be, ok := err.(*BackendError)
	return ok && be.Code == "NOT_FOUND"
}

// RedisConfig configures a RedisBackend.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// RedisBackend is a Redis-backed Backend.
type RedisBackend struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBackend dials Redis and verifies connectivity before returning.
func NewRedisBackend(cfg RedisConfig, logger *slog.Logger) (*RedisBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err, "addr", cfg.Addr)
		return nil, &BackendError{Message: "failed to connect to redis", Code: "CONNECTION_ERROR", Cause: err}
	}

	logger.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisBackend{client: client, logger: logger}, nil
}

// Get fetches a value by key and deserializes it into dest.
func (b *RedisBackend) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := b.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return &BackendError{Message: "failed to get value", Code: "GET_ERROR", Cause: err}
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return &BackendError{Message: "failed to unmarshal value", Code: "UNMARSHAL_ERROR", Cause: err}
	}
	return nil
}

// Set stores a value with the given TTL.
func (b *RedisBackend) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &BackendError{Message: "failed to marshal value", Code: "MARSHAL_ERROR", Cause: err}
	}
	if err := b.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return &BackendError{Message: "failed to set value", Code: "SET_ERROR", Cause: err}
	}
	return nil
}

// Close closes the underlying Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
