package executionplan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionPlanStatus represents the lifecycle state of a plan
type ExecutionPlanStatus string

const (
	// StatusDraft means the plan exists but nothing is working on it
	StatusDraft ExecutionPlanStatus = "draft"
	// StatusExecuting means the plan is the active plan of its scope
	StatusExecuting ExecutionPlanStatus = "executing"
	// StatusCompleted means the plan finished
	StatusCompleted ExecutionPlanStatus = "completed"
	// StatusCancelled means the plan was abandoned
	StatusCancelled ExecutionPlanStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from status
func (s ExecutionPlanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ExecutionPlan is a unit of work whose ID is what the context store keeps
// as the active reference of a project or session.
type ExecutionPlan struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	ProjectID   string              `json:"projectId"`
	SessionID   string              `json:"sessionId,omitempty"`
	Status      ExecutionPlanStatus `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// NewExecutionPlan creates a draft plan with a fresh ID
func NewExecutionPlan(description string, now time.Time) ExecutionPlan {
	return ExecutionPlan{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// FormatExecutionPlan renders a plan as a short markdown summary
func FormatExecutionPlan(plan ExecutionPlan) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Execution Plan: %s\n\n", plan.Description))
	sb.WriteString(fmt.Sprintf("Plan ID: %s\n", plan.ID))
	scope := plan.ProjectID
	if plan.SessionID != "" {
		scope += "/" + plan.SessionID
	}
	if scope != "" {
		sb.WriteString(fmt.Sprintf("Scope: %s\n", scope))
	}
	sb.WriteString(fmt.Sprintf("Status: %s\n", plan.Status))
	sb.WriteString(fmt.Sprintf("Updated: %s\n", plan.UpdatedAt.Format(time.RFC3339)))

	return sb.String()
}
