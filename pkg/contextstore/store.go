// Package contextstore keeps the active plan reference for each project or
// project/session scope and expires it after a timeout.
//
// Expired contexts are removed lazily when a read finds them and eagerly by a
// background sweep started with Store.Start.
package contextstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
	"github.com/run-bigpig/plan-context/pkg/logging"
)

const (
	// DefaultTimeout is applied when Activate or Extend get no explicit timeout
	DefaultTimeout = 30 * time.Minute

	// DefaultSweepInterval is the period between background sweeps
	DefaultSweepInterval = time.Minute
)

// Store is a thread-safe in-memory plan context store.
// All access to the map goes through mu; stored contexts are values and are
// replaced, never mutated in place.
type Store struct {
	mu       sync.RWMutex
	contexts map[interfaces.ContextKey]interfaces.PlanContext

	defaultTimeout atomic.Int64
	sweepInterval  time.Duration
	now            func() time.Time
	logger         logging.Logger
	sweeper        *Sweeper
}

var _ interfaces.ContextStore = (*Store)(nil)

// Option represents an option for configuring the store
type Option func(*Store)

// WithDefaultTimeout sets the timeout used when none is given per call
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.defaultTimeout.Store(int64(timeout))
	}
}

// WithSweepInterval sets the period of the background sweep
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Store) {
		s.sweepInterval = interval
	}
}

// WithClock replaces time.Now, mainly for deterministic tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for audit and sweep events
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new store. It fails if the default timeout or the sweep
// interval is not positive.
func New(options ...Option) (*Store, error) {
	s := &Store{
		contexts:      make(map[interfaces.ContextKey]interfaces.PlanContext),
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        logging.NewNop(),
	}
	s.defaultTimeout.Store(int64(DefaultTimeout))

	for _, option := range options {
		option(s)
	}

	if err := validateTimeout(s.DefaultTimeout()); err != nil {
		return nil, fmt.Errorf("default timeout: %w", err)
	}
	if s.sweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", s.sweepInterval)
	}
	s.sweeper = NewSweeper(s, s.sweepInterval, s.logger)
	return s, nil
}

// DefaultTimeout returns the timeout applied when none is given per call
func (s *Store) DefaultTimeout() time.Duration {
	return time.Duration(s.defaultTimeout.Load())
}

// SetDefaultTimeout changes the default timeout for subsequent calls.
// Existing contexts keep their expiry.
func (s *Store) SetDefaultTimeout(timeout time.Duration) error {
	if err := validateTimeout(timeout); err != nil {
		return err
	}
	s.defaultTimeout.Store(int64(timeout))
	return nil
}

// SweepInterval returns the period of the background sweep
func (s *Store) SweepInterval() time.Duration {
	return s.sweepInterval
}

// Activate stores referenceID for key with a fresh activation time,
// replacing whatever was stored for key before.
func (s *Store) Activate(ctx context.Context, referenceID string, key interfaces.ContextKey, options ...interfaces.ContextOption) error {
	if err := validateReference(referenceID); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	timeout, err := resolveTimeout(s.DefaultTimeout(), options)
	if err != nil {
		return err
	}

	s.mu.Lock()
	now := s.now()
	planCtx := interfaces.PlanContext{
		ReferenceID: referenceID,
		ProjectID:   key.ProjectID,
		SessionID:   key.SessionID,
		ActivatedAt: now,
		ExpiresAt:   now.Add(timeout),
	}
	s.contexts[key] = planCtx
	s.mu.Unlock()

	s.logger.Debug(ctx, "plan context activated", map[string]interface{}{
		"key":          key.String(),
		"reference_id": referenceID,
		"expires_at":   planCtx.ExpiresAt,
	})
	return nil
}

// Lookup returns the reference stored for key if it has not expired.
// An expired context is removed. Lookup never extends a context.
func (s *Store) Lookup(ctx context.Context, key interfaces.ContextKey) (string, bool, error) {
	planCtx, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return planCtx.ReferenceID, true, nil
}

// Get is like Lookup but returns the whole context
func (s *Store) Get(ctx context.Context, key interfaces.ContextKey) (interfaces.PlanContext, bool, error) {
	if err := validateKey(key); err != nil {
		return interfaces.PlanContext{}, false, err
	}

	s.mu.RLock()
	planCtx, ok := s.contexts[key]
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		return interfaces.PlanContext{}, false, nil
	}
	if !planCtx.ExpiredAt(now) {
		return planCtx, true, nil
	}

	// Re-check under the write lock: the context may have been replaced or
	// extended since the read lock was released.
	s.mu.Lock()
	planCtx, ok = s.contexts[key]
	now = s.now()
	if ok && !planCtx.ExpiredAt(now) {
		s.mu.Unlock()
		return planCtx, true, nil
	}
	if ok {
		delete(s.contexts, key)
	}
	s.mu.Unlock()

	if ok {
		s.logger.Debug(ctx, "plan context expired on read", map[string]interface{}{
			"key":          key.String(),
			"reference_id": planCtx.ReferenceID,
		})
	}
	return interfaces.PlanContext{}, false, nil
}

// Clear removes the context for key. It reports true whenever a context was
// stored, including one that had expired but was not yet swept.
func (s *Store) Clear(ctx context.Context, key interfaces.ContextKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	_, ok := s.contexts[key]
	delete(s.contexts, key)
	s.mu.Unlock()

	if ok {
		s.logger.Debug(ctx, "plan context cleared", map[string]interface{}{"key": key.String()})
	}
	return ok, nil
}

// Extend sets the expiry of the context for key to now plus the timeout.
// A context that expired but was not yet evicted is brought back.
// ActivatedAt is left unchanged. Extend reports false when no context exists.
func (s *Store) Extend(ctx context.Context, key interfaces.ContextKey, options ...interfaces.ContextOption) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	timeout, err := resolveTimeout(s.DefaultTimeout(), options)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	planCtx, ok := s.contexts[key]
	if ok {
		planCtx.ExpiresAt = s.now().Add(timeout)
		s.contexts[key] = planCtx
	}
	s.mu.Unlock()

	if ok {
		s.logger.Debug(ctx, "plan context extended", map[string]interface{}{
			"key":        key.String(),
			"expires_at": planCtx.ExpiresAt,
		})
	}
	return ok, nil
}

// ListActive returns a snapshot of every context that has not expired.
// Expired contexts found during the scan are removed. Order is unspecified.
func (s *Store) ListActive(ctx context.Context) ([]interfaces.ActiveContext, error) {
	s.mu.Lock()
	now := s.now()
	active := make([]interfaces.ActiveContext, 0, len(s.contexts))
	evicted := 0
	for key, planCtx := range s.contexts {
		if planCtx.ExpiredAt(now) {
			delete(s.contexts, key)
			evicted++
			continue
		}
		active = append(active, interfaces.ActiveContext{Key: key, Context: planCtx})
	}
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.Debug(ctx, "expired plan contexts removed while listing", map[string]interface{}{"count": evicted})
	}
	return active, nil
}

// Sweep removes every expired context and returns the number removed
func (s *Store) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	now := s.now()
	removed := 0
	for key, planCtx := range s.contexts {
		if planCtx.ExpiredAt(now) {
			delete(s.contexts, key)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug(ctx, "swept expired plan contexts", map[string]interface{}{"count": removed})
	}
	return removed, nil
}

// Start launches the background sweep. It is a no-op if the sweep is
// already running; it stops on Stop or when ctx is cancelled.
func (s *Store) Start(ctx context.Context) {
	s.sweeper.Start(ctx)
}

// Stop stops the background sweep and waits for it to exit
func (s *Store) Stop() {
	s.sweeper.Stop()
}

// Run sweeps every sweep interval until ctx is cancelled
func (s *Store) Run(ctx context.Context) {
	s.sweeper.Run(ctx)
}

// Running reports whether the background sweep was started and not stopped
func (s *Store) Running() bool {
	return s.sweeper.Running()
}

// Len returns the number of stored contexts, including expired ones not yet swept
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}
