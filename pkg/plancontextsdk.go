package plancontextsdk

import (
	"context"
	"time"

	"github.com/run-bigpig/plan-context/pkg/contextstore"
	"github.com/run-bigpig/plan-context/pkg/executionplan"
	"github.com/run-bigpig/plan-context/pkg/interfaces"
	"github.com/run-bigpig/plan-context/pkg/logging"
	"github.com/run-bigpig/plan-context/pkg/mcp"
	"github.com/run-bigpig/plan-context/pkg/metrics"
	"github.com/run-bigpig/plan-context/pkg/scope"
	"github.com/run-bigpig/plan-context/pkg/tracing"
)

// NewStore creates a new in-memory plan context store with the given options
func NewStore(options ...contextstore.Option) (*contextstore.Store, error) {
	return contextstore.New(options...)
}

// NewRedisStore creates a plan context store kept in Redis
func NewRedisStore(ctx context.Context, config contextstore.RedisConfig, options ...contextstore.RedisOption) (*contextstore.RedisStore, error) {
	return contextstore.NewRedisStoreFromConfig(ctx, config, options...)
}

// WithDefaultTimeout sets the timeout used when a call gives none
func WithDefaultTimeout(timeout time.Duration) contextstore.Option {
	return contextstore.WithDefaultTimeout(timeout)
}

// WithSweepInterval sets the period of the background sweep
func WithSweepInterval(interval time.Duration) contextstore.Option {
	return contextstore.WithSweepInterval(interval)
}

// WithLogger sets the logger of the store
func WithLogger(logger logging.Logger) contextstore.Option {
	return contextstore.WithLogger(logger)
}

// WithTimeout overrides the timeout of a single Activate or Extend call
func WithTimeout(timeout time.Duration) interfaces.ContextOption {
	return interfaces.WithTimeout(timeout)
}

// Key builds a context key. Pass an empty session for a project-wide context.
func Key(projectID, sessionID string) interfaces.ContextKey {
	return interfaces.ContextKey{ProjectID: projectID, SessionID: sessionID}
}

// WithProject scopes ctx to a project and, if sessionID is not empty, a session
func WithProject(ctx context.Context, projectID, sessionID string) context.Context {
	return scope.WithKey(ctx, Key(projectID, sessionID))
}

// NewSweeper creates a background sweep for any context store
func NewSweeper(store interfaces.ContextStore, interval time.Duration, logger logging.Logger) *contextstore.Sweeper {
	return contextstore.NewSweeper(store, interval, logger)
}

// Plan tracking

// NewTracker creates a plan tracker recording active plans in store
func NewTracker(store interfaces.ContextStore, options ...executionplan.TrackerOption) *executionplan.Tracker {
	return executionplan.NewTracker(store, options...)
}

// Instrumentation

// WithMetrics counts every call to store in collector
func WithMetrics(store interfaces.ContextStore, collector *metrics.Collector) interfaces.ContextStore {
	return metrics.NewContextStoreMetricsMiddleware(store, collector)
}

// WithTracing records a span for every call to store
func WithTracing(store interfaces.ContextStore, tracer *tracing.OTelTracer) interfaces.ContextStore {
	return tracing.NewContextStoreOTelMiddleware(store, tracer)
}

// NewContextTools exposes store as MCP tools
func NewContextTools(store interfaces.ContextStore, options ...mcp.ToolsOption) *mcp.ContextTools {
	return mcp.NewContextTools(store, options...)
}
