package interfaces

import (
	"context"
	"time"
)

// ContextKey identifies the scope a plan context belongs to.
// An empty SessionID means the context applies to the whole project.
// ContextKey is comparable and is used directly as a map key.
type ContextKey struct {
	// ProjectID is the required owning scope
	ProjectID string

	// SessionID optionally narrows the scope to one session
	SessionID string
}

// String renders the key for logs and debugging output only.
func (k ContextKey) String() string {
	if k.SessionID == "" {
		return k.ProjectID
	}
	return k.ProjectID + "/" + k.SessionID
}

// HasSession reports whether the key is narrowed to a session
func (k ContextKey) HasSession() bool {
	return k.SessionID != ""
}

// PlanContext is one active association between a scope and a plan reference
type PlanContext struct {
	// ReferenceID is the opaque identifier of the tracked plan
	ReferenceID string `json:"reference_id"`

	// ProjectID is the owning project
	ProjectID string `json:"project_id"`

	// SessionID is the optional session, empty when absent
	SessionID string `json:"session_id,omitempty"`

	// ActivatedAt is when the context was created or last activated
	ActivatedAt time.Time `json:"activated_at"`

	// ExpiresAt is the instant after which the context is invalid
	ExpiresAt time.Time `json:"expires_at"`
}

// Key returns the composite key of the context
func (c PlanContext) Key() ContextKey {
	return ContextKey{ProjectID: c.ProjectID, SessionID: c.SessionID}
}

// ExpiredAt reports whether the context is expired at now.
// A context is still valid at exactly ExpiresAt.
func (c PlanContext) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ActiveContext pairs an active plan context with its composite key
type ActiveContext struct {
	Key     ContextKey
	Context PlanContext
}

// ContextStore is a time-bounded store of plan contexts keyed by project and session
type ContextStore interface {
	// Activate stores referenceID for key, replacing any previous context
	Activate(ctx context.Context, referenceID string, key ContextKey, options ...ContextOption) error

	// Lookup returns the active reference for key. Expired contexts are evicted and reported absent.
	Lookup(ctx context.Context, key ContextKey) (string, bool, error)

	// Clear removes the context for key and reports whether one was present
	Clear(ctx context.Context, key ContextKey) (bool, error)

	// Extend recomputes the expiry of an existing context from the current time
	Extend(ctx context.Context, key ContextKey, options ...ContextOption) (bool, error)

	// ListActive returns a snapshot of all active contexts
	ListActive(ctx context.Context) ([]ActiveContext, error)

	// Sweep removes all expired contexts and returns how many were removed
	Sweep(ctx context.Context) (int, error)
}

// ContextOptions contains options for activating or extending a context
type ContextOptions struct {
	// Timeout is the lifetime applied from the current time
	Timeout time.Duration

	// HasTimeout is true when Timeout was set explicitly
	HasTimeout bool
}

// ContextOption represents an option for activating or extending a context
type ContextOption func(*ContextOptions)

// WithTimeout sets an explicit timeout instead of the store default
func WithTimeout(timeout time.Duration) ContextOption {
	return func(o *ContextOptions) {
		o.Timeout = timeout
		o.HasTimeout = true
	}
}

// ApplyContextOptions folds options into a ContextOptions value
func ApplyContextOptions(options ...ContextOption) ContextOptions {
	var opts ContextOptions
	for _, option := range options {
		option(&opts)
	}
	return opts
}
