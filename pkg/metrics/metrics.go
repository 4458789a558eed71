// Package metrics counts context store activity and renders it in the
// Prometheus text exposition format.
package metrics

import (
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Collector holds the counters for one context store
type Collector struct {
	activations  atomic.Uint64
	lookupHits   atomic.Uint64
	lookupMisses atomic.Uint64
	clears       atomic.Uint64
	extends      atomic.Uint64
	sweeps       atomic.Uint64
	swept        atomic.Uint64
	errors       atomic.Uint64

	mu        sync.RWMutex
	storedFn  func() int
	namespace string
}

// Option configures a Collector
type Option func(*Collector)

// WithNamespace sets the metric name prefix (default "plancontext")
func WithNamespace(namespace string) Option {
	return func(c *Collector) {
		c.namespace = namespace
	}
}

// WithStoredCount reports the number of stored contexts as a gauge
func WithStoredCount(fn func() int) Option {
	return func(c *Collector) {
		c.storedFn = fn
	}
}

// NewCollector creates a new collector
func NewCollector(options ...Option) *Collector {
	c := &Collector{namespace: "plancontext"}
	for _, option := range options {
		option(c)
	}
	return c
}

// SetStoredCount replaces the gauge source, e.g. after the store is rebuilt
func (c *Collector) SetStoredCount(fn func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storedFn = fn
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Activations  uint64
	LookupHits   uint64
	LookupMisses uint64
	Clears       uint64
	Extends      uint64
	Sweeps       uint64
	Swept        uint64
	Errors       uint64
	Stored       int
}

// Snapshot returns the current counter values
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	storedFn := c.storedFn
	c.mu.RUnlock()

	s := Snapshot{
		Activations:  c.activations.Load(),
		LookupHits:   c.lookupHits.Load(),
		LookupMisses: c.lookupMisses.Load(),
		Clears:       c.clears.Load(),
		Extends:      c.extends.Load(),
		Sweeps:       c.sweeps.Load(),
		Swept:        c.swept.Load(),
		Errors:       c.errors.Load(),
		Stored:       -1,
	}
	if storedFn != nil {
		s.Stored = storedFn()
	}
	return s
}

func counter(name, help string, value uint64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{
			Counter: &dto.Counter{Value: proto.Float64(float64(value))},
		}},
	}
}

func gauge(name, help string, value float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Gauge: &dto.Gauge{Value: proto.Float64(value)},
		}},
	}
}

// Families builds the metric families for the current snapshot
func (c *Collector) Families() []*dto.MetricFamily {
	s := c.Snapshot()
	ns := c.namespace + "_"
	families := []*dto.MetricFamily{
		counter(ns+"activations_total", "Plan contexts activated.", s.Activations),
		counter(ns+"lookup_hits_total", "Lookups that found an active plan context.", s.LookupHits),
		counter(ns+"lookup_misses_total", "Lookups that found no active plan context.", s.LookupMisses),
		counter(ns+"clears_total", "Plan contexts removed by clear.", s.Clears),
		counter(ns+"extends_total", "Plan contexts extended.", s.Extends),
		counter(ns+"sweeps_total", "Sweeps run.", s.Sweeps),
		counter(ns+"swept_total", "Expired plan contexts removed by sweeps.", s.Swept),
		counter(ns+"errors_total", "Context store operations that returned an error.", s.Errors),
	}
	if s.Stored >= 0 {
		families = append(families, gauge(ns+"stored", "Plan contexts currently stored, expired ones not yet swept included.", float64(s.Stored)))
	}
	return families
}

// WriteText writes all metrics in the Prometheus text format
func (c *Collector) WriteText(w io.Writer) error {
	for _, mf := range c.Families() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics over HTTP
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if err := c.WriteText(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
