package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
)

// ContextStoreOTelMiddleware wraps a context store with OpenTelemetry tracing
type ContextStoreOTelMiddleware struct {
	store  interfaces.ContextStore
	tracer *OTelTracer
}

var _ interfaces.ContextStore = (*ContextStoreOTelMiddleware)(nil)

// NewContextStoreOTelMiddleware creates a new context store middleware with OpenTelemetry tracing
func NewContextStoreOTelMiddleware(store interfaces.ContextStore, tracer *OTelTracer) *ContextStoreOTelMiddleware {
	return &ContextStoreOTelMiddleware{
		store:  store,
		tracer: tracer,
	}
}

func keyAttributes(key interfaces.ContextKey) map[string]string {
	attrs := map[string]string{"context.project_id": key.ProjectID}
	if key.HasSession() {
		attrs["context.session_id"] = key.SessionID
	}
	return attrs
}

// Activate implements interfaces.ContextStore.Activate
func (m *ContextStoreOTelMiddleware) Activate(ctx context.Context, referenceID string, key interfaces.ContextKey, options ...interfaces.ContextOption) (err error) {
	attributes := keyAttributes(key)
	attributes["context.reference_id"] = referenceID

	ctx, span := m.tracer.StartSpan(ctx, "context_store.activate", attributes)
	defer func() {
		m.tracer.EndSpan(span, err)
	}()

	return m.store.Activate(ctx, referenceID, key, options...)
}

// Lookup implements interfaces.ContextStore.Lookup
func (m *ContextStoreOTelMiddleware) Lookup(ctx context.Context, key interfaces.ContextKey) (ref string, ok bool, err error) {
	ctx, span := m.tracer.StartSpan(ctx, "context_store.lookup", keyAttributes(key))
	defer func() {
		m.tracer.EndSpan(span, err)
	}()

	ref, ok, err = m.store.Lookup(ctx, key)
	span.SetAttributes(attribute.Bool("context.found", ok))
	return ref, ok, err
}

// Clear implements interfaces.ContextStore.Clear
func (m *ContextStoreOTelMiddleware) Clear(ctx context.Context, key interfaces.ContextKey) (removed bool, err error) {
	ctx, span := m.tracer.StartSpan(ctx, "context_store.clear", keyAttributes(key))
	defer func() {
		m.tracer.EndSpan(span, err)
	}()

	removed, err = m.store.Clear(ctx, key)
	span.SetAttributes(attribute.Bool("context.removed", removed))
	return removed, err
}

// Extend implements interfaces.ContextStore.Extend
func (m *ContextStoreOTelMiddleware) Extend(ctx context.Context, key interfaces.ContextKey, options ...interfaces.ContextOption) (extended bool, err error) {
	ctx, span := m.tracer.StartSpan(ctx, "context_store.extend", keyAttributes(key))
	defer func() {
		m.tracer.EndSpan(span, err)
	}()

	extended, err = m.store.Extend(ctx, key, options...)
	span.SetAttributes(attribute.Bool("context.extended", extended))
	return extended, err
}

// ListActive implements interfaces.ContextStore.ListActive
func (m *ContextStoreOTelMiddleware) ListActive(ctx context.Context) (active []interfaces.ActiveContext, err error) {
	ctx, span := m.tracer.StartSpan(ctx, "context_store.list_active", nil)
	defer func() {
		m.tracer.EndSpan(span, err)
	}()

	active, err = m.store.ListActive(ctx)
	span.SetAttributes(attribute.Int("context.count", len(active)))
	return active, err
}

// Sweep implements interfaces.ContextStore.Sweep
func (m *ContextStoreOTelMiddleware) Sweep(ctx context.Context) (removed int, err error) {
	ctx, span := m.tracer.StartSpan(ctx, "context_store.sweep", nil)
	defer func() {
		m.tracer.EndSpan(span, err)
	}()

	removed, err = m.store.Sweep(ctx)
	span.SetAttributes(attribute.Int("context.removed", removed))
	return removed, err
}
