// Package metrics exports storage and event bus activity to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/sctype"
	"github.com/viant/scgraph/storage"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "scgraph"

// Collector implements storage.Metrics and event.Observer.
type Collector struct {
	registry   *prometheus.Registry
	created    *prometheus.CounterVec
	erased     *prometheus.CounterVec
	reclaimed  prometheus.Counter
	gcDuration prometheus.Histogram
	segments   prometheus.Gauge
	iterators  prometheus.Gauge
	events     *prometheus.CounterVec
	callbacks  *prometheus.CounterVec
}

// New creates a collector registered in its own registry.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "created_total",
			Help:      "Elements created. Broken down by kind.",
		}, []string{"kind"}),
		erased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "erased_total",
			Help:      "Elements erased, cascade included. Broken down by kind.",
		}, []string{"kind"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "reclaimed_total",
			Help:      "Slots returned to segments by garbage collection.",
		}),
		gcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gc",
			Name:      "duration_seconds",
			Help:      "Garbage collection pass duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		segments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "segments",
			Help:      "Allocated segments.",
		}),
		iterators: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "iterators",
			Help:      "Outstanding iterators holding back garbage collection.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "event",
			Name:      "emitted_total",
			Help:      "Events emitted. Broken down by event kind.",
		}, []string{"event"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "event",
			Name:      "callbacks_total",
			Help:      "Subscriber callbacks invoked. Broken down by event kind.",
		}, []string{"event"}),
	}
	c.registry.MustRegister(c.created, c.erased, c.reclaimed, c.gcDuration,
		c.segments, c.iterators, c.events, c.callbacks)
	return c
}

// Registry returns the private registry holding the collector metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) OnCreate(kind sctype.Kind) {
	c.created.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) OnErase(kind sctype.Kind) {
	c.erased.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) OnCollect(elapsed time.Duration, reclaimed int) {
	c.gcDuration.Observe(elapsed.Seconds())
	c.reclaimed.Add(float64(reclaimed))
}

func (c *Collector) OnSegments(count int) { c.segments.Set(float64(count)) }

func (c *Collector) OnIterators(count int) { c.iterators.Set(float64(count)) }

// OnEmit counts an emission and the callbacks it reached.
func (c *Collector) OnEmit(kind event.Kind, callbacks int) {
	c.events.WithLabelValues(kind.String()).Inc()
	c.callbacks.WithLabelValues(kind.String()).Add(float64(callbacks))
}

var (
	_ storage.Metrics = (*Collector)(nil)
	_ event.Observer  = (*Collector)(nil)
)
