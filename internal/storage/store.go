// Package storage provides an optional Redis-backed shared tier for
// TokenCache and KeyCache, letting multiple authentication-core instances
// share cached decisions instead of each holding an independent in-memory
// LRU. Adapted from the gateway's Redis cache backend.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haloedge/authcore/internal/observability"
)

const tracerName = "authcore/storage"

// ErrMiss indicates key was not found.
var ErrMiss = errors.New("storage: key miss")

// Config controls the Redis connection backing the shared store.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

func (c Config) resolvedPrefix() string {
	if c.KeyPrefix == "" {
		return "authcore:"
	}
	return c.KeyPrefix
}

// Store is a Redis-backed get/set/delete capability with retry on
// transient connection errors (never on a genuine cache miss).
type Store struct {
	client    *redis.Client
	keyPrefix string
	logger    observability.Logger
}

// New builds a Store and pings the connection once to fail fast.
func New(cfg Config, logger observability.Logger) (*Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Store{client: client, keyPrefix: cfg.resolvedPrefix(), logger: logger}, nil
}

// NewFromClient builds a Store around an already-constructed redis.Client,
// used in tests against a miniredis instance.
func NewFromClient(client *redis.Client, keyPrefix string, logger observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if keyPrefix == "" {
		keyPrefix = "authcore:"
	}
	return &Store{client: client, keyPrefix: keyPrefix, logger: logger}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

const (
	storeMaxRetries     = 2
	storeInitialBackoff = 25 * time.Millisecond
	storeMaxBackoff     = 200 * time.Millisecond
)

// withRetry runs fn, retrying on transient Redis errors (connection resets,
// timeouts) with capped exponential backoff. A cache miss or a context
// error is never retried: isRetryable treats both as terminal.
func withRetry(ctx context.Context, fn func() error) error {
	backoff := storeInitialBackoff

	var lastErr error
	for attempt := 0; attempt <= storeMaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < storeMaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > storeMaxBackoff {
				backoff = storeMaxBackoff
			}
		}
	}
	return lastErr
}

func (s *Store) fullKey(key string) string { return s.keyPrefix + key }

// Get returns the raw value stored at key, or ErrMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "storage.Get", trace.WithAttributes(attribute.String("storage.key", key)))
	defer span.End()

	fullKey := s.fullKey(key)
	var result []byte
	err := withRetry(ctx, func() error {
		val, getErr := s.client.Get(ctx, fullKey).Bytes()
		if getErr == nil {
			result = val
		}
		return getErr
	})

	if err == nil {
		span.SetAttributes(attribute.Bool("storage.hit", true))
		return result, nil
	}
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("storage.hit", false))
		return nil, ErrMiss
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	s.logger.Error("storage get failed", observability.String("key", key), observability.Error(err))
	return nil, err
}

// Set stores value at key. A zero ttl means no expiration; negative key
// entries are written with the bounded negativeTTL instead.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "storage.Set", trace.WithAttributes(attribute.String("storage.key", key)))
	defer span.End()

	fullKey := s.fullKey(key)
	err := withRetry(ctx, func() error {
		return s.client.Set(ctx, fullKey, value, ttl).Err()
	})

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		s.logger.Error("storage set failed", observability.String("key", key), observability.Error(err))
	}
	return err
}

// Delete removes key, if present. Best-effort.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "storage.Delete", trace.WithAttributes(attribute.String("storage.key", key)))
	defer span.End()

	fullKey := s.fullKey(key)
	err := withRetry(ctx, func() error {
		return s.client.Del(ctx, fullKey).Err()
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	return err
}

// Close closes the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
