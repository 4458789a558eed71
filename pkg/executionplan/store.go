package executionplan

import (
	"fmt"
	"sync"
	"time"
)

// Store handles storage and retrieval of execution plans.
// Plans are kept by value so callers never share state with the store.
type Store struct {
	plans      map[string]ExecutionPlan
	plansMutex sync.RWMutex
}

// NewStore creates a new execution plan store
func NewStore() *Store {
	return &Store{
		plans: make(map[string]ExecutionPlan),
	}
}

// StorePlan stores an execution plan, replacing any plan with the same ID
func (s *Store) StorePlan(plan ExecutionPlan) {
	s.plansMutex.Lock()
	defer s.plansMutex.Unlock()
	s.plans[plan.ID] = plan
}

// GetPlan retrieves an execution plan by its ID
func (s *Store) GetPlan(id string) (ExecutionPlan, bool) {
	s.plansMutex.RLock()
	defer s.plansMutex.RUnlock()
	plan, exists := s.plans[id]
	return plan, exists
}

// ListPlans returns a list of all plans
func (s *Store) ListPlans() []ExecutionPlan {
	s.plansMutex.RLock()
	defer s.plansMutex.RUnlock()

	plans := make([]ExecutionPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		plans = append(plans, plan)
	}
	return plans
}

// UpdateStatus moves the plan to status. Plans in a terminal status cannot
// move again.
func (s *Store) UpdateStatus(id string, status ExecutionPlanStatus, now time.Time) (ExecutionPlan, error) {
	s.plansMutex.Lock()
	defer s.plansMutex.Unlock()

	plan, exists := s.plans[id]
	if !exists {
		return ExecutionPlan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	if plan.Status.Terminal() {
		return plan, fmt.Errorf("plan %s is already %s", id, plan.Status)
	}
	plan.Status = status
	plan.UpdatedAt = now
	s.plans[id] = plan
	return plan, nil
}

// DeletePlan deletes a plan by its ID
func (s *Store) DeletePlan(id string) bool {
	s.plansMutex.Lock()
	defer s.plansMutex.Unlock()

	_, exists := s.plans[id]
	if exists {
		delete(s.plans, id)
	}
	return exists
}
