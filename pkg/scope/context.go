package scope

import (
	"context"
	"errors"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
)

type contextKey string

const (
	// projectIDKey is the context key for the project ID
	projectIDKey contextKey = "project_id"

	// sessionIDKey is the context key for the session ID
	sessionIDKey contextKey = "session_id"
)

var (
	// ErrNoProjectID is returned when no project ID is found in the context
	ErrNoProjectID = errors.New("no project ID found in context")
)

// WithProjectID returns a new context with the given project ID
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDKey, projectID)
}

// WithSessionID returns a new context with the given session ID
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithKey returns a new context carrying both parts of key
func WithKey(ctx context.Context, key interfaces.ContextKey) context.Context {
	ctx = WithProjectID(ctx, key.ProjectID)
	if key.SessionID != "" {
		ctx = WithSessionID(ctx, key.SessionID)
	}
	return ctx
}

// GetProjectID returns the project ID from the context
func GetProjectID(ctx context.Context) (string, error) {
	projectID, ok := ctx.Value(projectIDKey).(string)
	if !ok || projectID == "" {
		return "", ErrNoProjectID
	}
	return projectID, nil
}

// GetSessionID returns the session ID from the context, if any
func GetSessionID(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionIDKey).(string)
	return sessionID, ok && sessionID != ""
}

// KeyFromContext builds the composite context key from the project and session in ctx
func KeyFromContext(ctx context.Context) (interfaces.ContextKey, error) {
	projectID, err := GetProjectID(ctx)
	if err != nil {
		return interfaces.ContextKey{}, err
	}
	sessionID, _ := GetSessionID(ctx)
	return interfaces.ContextKey{ProjectID: projectID, SessionID: sessionID}, nil
}

// HasProjectID returns true if the context has a project ID
func HasProjectID(ctx context.Context) bool {
	_, err := GetProjectID(ctx)
	return err == nil
}
