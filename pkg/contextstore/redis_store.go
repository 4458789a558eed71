package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
	"github.com/run-bigpig/plan-context/pkg/logging"
	"github.com/run-bigpig/plan-context/pkg/retry"
)

// RedisStore implements interfaces.ContextStore on top of Redis.
//
// Each context is a JSON value whose Redis TTL equals its timeout, so Redis
// drops expired contexts on its own. A context that Redis already dropped is
// gone for Clear and Extend as well. Expiry is still checked against the
// stored ExpiresAt on every read, which keeps the store correct when the
// Redis clock and the local clock disagree.
type RedisStore struct {
	client         *redis.Client
	keyPrefix      string
	defaultTimeout atomic.Int64
	now            func() time.Time
	logger         logging.Logger
	retryPolicy    *retry.Policy
	scanCount      int64
}

var _ interfaces.ContextStore = (*RedisStore)(nil)

// RedisOption represents an option for configuring the Redis store
type RedisOption func(*RedisStore)

// WithRedisKeyPrefix sets a custom prefix for Redis keys
func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(r *RedisStore) {
		r.keyPrefix = prefix
	}
}

// WithRedisDefaultTimeout sets the timeout used when none is given per call
func WithRedisDefaultTimeout(timeout time.Duration) RedisOption {
	return func(r *RedisStore) {
		r.defaultTimeout.Store(int64(timeout))
	}
}

// WithRedisClock replaces time.Now
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *RedisStore) {
		r.now = now
	}
}

// WithRedisLogger sets the logger
func WithRedisLogger(logger logging.Logger) RedisOption {
	return func(r *RedisStore) {
		r.logger = logger
	}
}

// WithRedisRetryPolicy configures retry behavior for Redis operations
func WithRedisRetryPolicy(policy *retry.Policy) RedisOption {
	return func(r *RedisStore) {
		r.retryPolicy = policy
	}
}

// RedisConfig contains configuration for Redis
type RedisConfig struct {
	// URL is the Redis address (e.g., "localhost:6379")
	URL string

	// Password is the Redis password
	Password string

	// DB is the Redis database number
	DB int
}

// NewRedisStore creates a new Redis-backed context store
func NewRedisStore(client *redis.Client, options ...RedisOption) (*RedisStore, error) {
	store := &RedisStore{
		client:      client,
		keyPrefix:   "plancontext:", // Default prefix
		now:         time.Now,
		logger:      logging.NewNop(),
		retryPolicy: retry.NewPolicy(),
		scanCount:   100,
	}
	store.defaultTimeout.Store(int64(DefaultTimeout))

	for _, option := range options {
		option(store)
	}

	if err := validateTimeout(store.DefaultTimeout()); err != nil {
		return nil, fmt.Errorf("default timeout: %w", err)
	}
	return store, nil
}

// NewRedisStoreFromConfig creates a client from config, checks the
// connection and wraps it in a RedisStore
func NewRedisStoreFromConfig(ctx context.Context, config RedisConfig, options ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.URL,
		Password: config.Password,
		DB:       config.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store, err := NewRedisStore(client, options...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// DefaultTimeout returns the timeout applied when none is given per call
func (r *RedisStore) DefaultTimeout() time.Duration {
	return time.Duration(r.defaultTimeout.Load())
}

// SetDefaultTimeout changes the default timeout for subsequent calls
func (r *RedisStore) SetDefaultTimeout(timeout time.Duration) error {
	if err := validateTimeout(timeout); err != nil {
		return err
	}
	r.defaultTimeout.Store(int64(timeout))
	return nil
}

// redisKey encodes key without ambiguity: the project is length-prefixed, so
// no project or session content can shift the boundary between them.
func (r *RedisStore) redisKey(key interfaces.ContextKey) string {
	return r.keyPrefix + strconv.Itoa(len(key.ProjectID)) + ":" + key.ProjectID + ":" + key.SessionID
}

// Activate stores referenceID for key, replacing any previous context
func (r *RedisStore) Activate(ctx context.Context, referenceID string, key interfaces.ContextKey, options ...interfaces.ContextOption) error {
	if err := validateReference(referenceID); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	timeout, err := resolveTimeout(r.DefaultTimeout(), options)
	if err != nil {
		return err
	}

	now := r.now()
	planCtx := interfaces.PlanContext{
		ReferenceID: referenceID,
		ProjectID:   key.ProjectID,
		SessionID:   key.SessionID,
		ActivatedAt: now,
		ExpiresAt:   now.Add(timeout),
	}
	data, err := json.Marshal(planCtx)
	if err != nil {
		return fmt.Errorf("failed to marshal plan context: %w", err)
	}

	redisKey := r.redisKey(key)
	err = retry.Do(ctx, r.retryPolicy, func() error {
		return r.client.Set(ctx, redisKey, data, timeout).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to activate plan context in Redis: %w", err)
	}

	r.logger.Debug(ctx, "plan context activated", map[string]interface{}{
		"key":          key.String(),
		"reference_id": referenceID,
		"expires_at":   planCtx.ExpiresAt,
	})
	return nil
}

// Lookup returns the reference stored for key if it has not expired
func (r *RedisStore) Lookup(ctx context.Context, key interfaces.ContextKey) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	redisKey := r.redisKey(key)
	planCtx, ok, err := r.load(ctx, redisKey)
	if err != nil || !ok {
		return "", false, err
	}
	if planCtx.ExpiredAt(r.now()) {
		if _, err := r.deleteIfExpired(ctx, redisKey); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return planCtx.ReferenceID, true, nil
}

// Clear removes the context for key and reports whether one was present
func (r *RedisStore) Clear(ctx context.Context, key interfaces.ContextKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var removed int64
	err := retry.Do(ctx, r.retryPolicy, func() error {
		var err error
		removed, err = r.client.Del(ctx, r.redisKey(key)).Result()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to clear plan context in Redis: %w", err)
	}
	return removed > 0, nil
}

// Extend recomputes the expiry of the context for key from the current time
func (r *RedisStore) Extend(ctx context.Context, key interfaces.ContextKey, options ...interfaces.ContextOption) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	timeout, err := resolveTimeout(r.DefaultTimeout(), options)
	if err != nil {
		return false, err
	}

	redisKey := r.redisKey(key)
	var extended bool
	err = retry.Do(ctx, r.retryPolicy, func() error {
		extended = false
		return r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, redisKey).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}

			var planCtx interfaces.PlanContext
			if err := json.Unmarshal(data, &planCtx); err != nil {
				return retry.Permanent(fmt.Errorf("failed to unmarshal plan context: %w", err))
			}
			planCtx.ExpiresAt = r.now().Add(timeout)
			updated, err := json.Marshal(planCtx)
			if err != nil {
				return retry.Permanent(fmt.Errorf("failed to marshal plan context: %w", err))
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, redisKey, updated, timeout)
				return nil
			})
			if err == nil {
				extended = true
			}
			return err
		}, redisKey)
	})
	if err != nil {
		return false, fmt.Errorf("failed to extend plan context in Redis: %w", err)
	}
	return extended, nil
}

// ListActive returns a snapshot of every active context under the key prefix
func (r *RedisStore) ListActive(ctx context.Context) ([]interfaces.ActiveContext, error) {
	active := make([]interfaces.ActiveContext, 0)
	now := r.now()
	err := r.scan(ctx, func(redisKey string) error {
		planCtx, ok, err := r.load(ctx, redisKey)
		if err != nil || !ok {
			return err
		}
		if planCtx.ExpiredAt(now) {
			_, err := r.deleteIfExpired(ctx, redisKey)
			return err
		}
		active = append(active, interfaces.ActiveContext{Key: planCtx.Key(), Context: planCtx})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// Sweep removes contexts that are expired by their stored ExpiresAt but are
// still held by Redis
func (r *RedisStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := r.scan(ctx, func(redisKey string) error {
		ok, err := r.deleteIfExpired(ctx, redisKey)
		if ok {
			removed++
		}
		return err
	})
	if removed > 0 {
		r.logger.Debug(ctx, "swept expired plan contexts", map[string]interface{}{"count": removed})
	}
	return removed, err
}

// Close closes the underlying Redis connection
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// load reads and decodes one context. A missing key is not an error.
func (r *RedisStore) load(ctx context.Context, redisKey string) (interfaces.PlanContext, bool, error) {
	var data []byte
	err := retry.Do(ctx, r.retryPolicy, func() error {
		var err error
		data, err = r.client.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		return interfaces.PlanContext{}, false, fmt.Errorf("failed to get plan context from Redis: %w", err)
	}
	if data == nil {
		return interfaces.PlanContext{}, false, nil
	}

	var planCtx interfaces.PlanContext
	if err := json.Unmarshal(data, &planCtx); err != nil {
		return interfaces.PlanContext{}, false, fmt.Errorf("failed to unmarshal plan context: %w", err)
	}
	return planCtx, true, nil
}

// deleteIfExpired deletes redisKey only if the value it holds is still
// expired, so a concurrent Activate or Extend is never lost
func (r *RedisStore) deleteIfExpired(ctx context.Context, redisKey string) (bool, error) {
	var deleted bool
	err := retry.Do(ctx, r.retryPolicy, func() error {
		deleted = false
		return r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, redisKey).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}

			var planCtx interfaces.PlanContext
			if err := json.Unmarshal(data, &planCtx); err != nil {
				return retry.Permanent(fmt.Errorf("failed to unmarshal plan context: %w", err))
			}
			if !planCtx.ExpiredAt(r.now()) {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, redisKey)
				return nil
			})
			if err == nil {
				deleted = true
			}
			return err
		}, redisKey)
	})
	if err != nil {
		return false, fmt.Errorf("failed to evict plan context in Redis: %w", err)
	}
	return deleted, nil
}

// scan calls fn for every key under the prefix
func (r *RedisStore) scan(ctx context.Context, fn func(redisKey string) error) error {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", r.scanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan plan contexts in Redis: %w", err)
	}
	return nil
}
