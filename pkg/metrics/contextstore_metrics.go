package metrics

import (
	"context"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
)

// ContextStoreMetricsMiddleware counts the operations going through a context store
type ContextStoreMetricsMiddleware struct {
	store     interfaces.ContextStore
	collector *Collector
}

var _ interfaces.ContextStore = (*ContextStoreMetricsMiddleware)(nil)

// NewContextStoreMetricsMiddleware wraps store so every call is counted by collector
func NewContextStoreMetricsMiddleware(store interfaces.ContextStore, collector *Collector) *ContextStoreMetricsMiddleware {
	return &ContextStoreMetricsMiddleware{store: store, collector: collector}
}

func (m *ContextStoreMetricsMiddleware) observe(err error) {
	if err != nil {
		m.collector.errors.Add(1)
	}
}

// Activate implements interfaces.ContextStore.Activate
func (m *ContextStoreMetricsMiddleware) Activate(ctx context.Context, referenceID string, key interfaces.ContextKey, options ...interfaces.ContextOption) error {
	err := m.store.Activate(ctx, referenceID, key, options...)
	m.observe(err)
	if err == nil {
		m.collector.activations.Add(1)
	}
	return err
}

// Lookup implements interfaces.ContextStore.Lookup
func (m *ContextStoreMetricsMiddleware) Lookup(ctx context.Context, key interfaces.ContextKey) (string, bool, error) {
	ref, ok, err := m.store.Lookup(ctx, key)
	m.observe(err)
	switch {
	case err != nil:
	case ok:
		m.collector.lookupHits.Add(1)
	default:
		m.collector.lookupMisses.Add(1)
	}
	return ref, ok, err
}

// Clear implements interfaces.ContextStore.Clear
func (m *ContextStoreMetricsMiddleware) Clear(ctx context.Context, key interfaces.ContextKey) (bool, error) {
	removed, err := m.store.Clear(ctx, key)
	m.observe(err)
	if removed {
		m.collector.clears.Add(1)
	}
	return removed, err
}

// Extend implements interfaces.ContextStore.Extend
func (m *ContextStoreMetricsMiddleware) Extend(ctx context.Context, key interfaces.ContextKey, options ...interfaces.ContextOption) (bool, error) {
	extended, err := m.store.Extend(ctx, key, options...)
	m.observe(err)
	if extended {
		m.collector.extends.Add(1)
	}
	return extended, err
}

// ListActive implements interfaces.ContextStore.ListActive
func (m *ContextStoreMetricsMiddleware) ListActive(ctx context.Context) ([]interfaces.ActiveContext, error) {
	active, err := m.store.ListActive(ctx)
	m.observe(err)
	return active, err
}

// Sweep implements interfaces.ContextStore.Sweep
func (m *ContextStoreMetricsMiddleware) Sweep(ctx context.Context) (int, error) {
	removed, err := m.store.Sweep(ctx)
	m.observe(err)
	m.collector.sweeps.Add(1)
	if removed > 0 {
		m.collector.swept.Add(uint64(removed))
	}
	return removed, err
}
