// Package executionplan tracks execution plans and keeps the plan being
// worked on registered as the active plan context of its project or session.
package executionplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
	"github.com/run-bigpig/plan-context/pkg/logging"
	"github.com/run-bigpig/plan-context/pkg/scope"
)

var (
	// ErrNoActivePlan is returned when the scope in ctx has no active plan
	ErrNoActivePlan = errors.New("no active execution plan")

	// ErrPlanNotFound is returned when a plan ID is unknown to the plan store
	ErrPlanNotFound = errors.New("execution plan not found")
)

// Tracker ties the plan store to a context store. The scope of every call
// (project and optional session) comes from ctx, see package scope.
type Tracker struct {
	plans    *Store
	contexts interfaces.ContextStore
	now      func() time.Time
	logger   logging.Logger
}

// TrackerOption configures a Tracker
type TrackerOption func(*Tracker)

// WithPlanStore shares an existing plan store
func WithPlanStore(plans *Store) TrackerOption {
	return func(t *Tracker) {
		t.plans = plans
	}
}

// WithTrackerClock replaces time.Now for plan timestamps
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithTrackerLogger sets the logger
func WithTrackerLogger(logger logging.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a tracker that records active plans in contexts
func NewTracker(contexts interfaces.ContextStore, options ...TrackerOption) *Tracker {
	t := &Tracker{
		plans:    NewStore(),
		contexts: contexts,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Plans returns the underlying plan store
func (t *Tracker) Plans() *Store {
	return t.plans
}

// Begin creates a plan, marks it executing and makes it the active plan of
// the scope in ctx. A previously active plan of the same scope is replaced
// but keeps its status.
func (t *Tracker) Begin(ctx context.Context, description string, options ...interfaces.ContextOption) (ExecutionPlan, error) {
	key, err := scope.KeyFromContext(ctx)
	if err != nil {
		return ExecutionPlan{}, err
	}

	plan := NewExecutionPlan(description, t.now())
	plan.ProjectID = key.ProjectID
	plan.SessionID = key.SessionID
	plan.Status = StatusExecuting
	t.plans.StorePlan(plan)

	if err := t.contexts.Activate(ctx, plan.ID, key, options...); err != nil {
		t.plans.DeletePlan(plan.ID)
		return ExecutionPlan{}, fmt.Errorf("failed to activate plan: %w", err)
	}

	t.logger.Info(ctx, "execution plan started", map[string]interface{}{
		"plan_id":     plan.ID,
		"description": description,
	})
	return plan, nil
}

// Active returns the active plan of the scope in ctx. It reports false when
// nothing is active or the active context has expired.
func (t *Tracker) Active(ctx context.Context) (ExecutionPlan, bool, error) {
	key, err := scope.KeyFromContext(ctx)
	if err != nil {
		return ExecutionPlan{}, false, err
	}

	ref, ok, err := t.contexts.Lookup(ctx, key)
	if err != nil || !ok {
		return ExecutionPlan{}, false, err
	}

	plan, ok := t.plans.GetPlan(ref)
	if !ok {
		return ExecutionPlan{}, false, fmt.Errorf("%w: %s", ErrPlanNotFound, ref)
	}
	return plan, true, nil
}

// Touch pushes back the expiry of the active plan context of the scope in
// ctx. It reports false when there is nothing to extend.
func (t *Tracker) Touch(ctx context.Context, options ...interfaces.ContextOption) (bool, error) {
	key, err := scope.KeyFromContext(ctx)
	if err != nil {
		return false, err
	}
	return t.contexts.Extend(ctx, key, options...)
}

// Complete marks the active plan completed and clears the plan context
func (t *Tracker) Complete(ctx context.Context) (ExecutionPlan, error) {
	return t.finish(ctx, StatusCompleted)
}

// Cancel marks the active plan cancelled and clears the plan context
func (t *Tracker) Cancel(ctx context.Context) (ExecutionPlan, error) {
	return t.finish(ctx, StatusCancelled)
}

func (t *Tracker) finish(ctx context.Context, status ExecutionPlanStatus) (ExecutionPlan, error) {
	key, err := scope.KeyFromContext(ctx)
	if err != nil {
		return ExecutionPlan{}, err
	}

	ref, ok, err := t.contexts.Lookup(ctx, key)
	if err != nil {
		return ExecutionPlan{}, err
	}
	if !ok {
		return ExecutionPlan{}, ErrNoActivePlan
	}

	plan, err := t.plans.UpdateStatus(ref, status, t.now())
	if err != nil {
		return ExecutionPlan{}, err
	}
	if _, err := t.contexts.Clear(ctx, key); err != nil {
		return plan, fmt.Errorf("failed to clear plan context: %w", err)
	}

	t.logger.Info(ctx, "execution plan finished", map[string]interface{}{
		"plan_id": plan.ID,
		"status":  string(status),
	})
	return plan, nil
}
