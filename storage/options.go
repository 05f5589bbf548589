package storage

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/sctype"
	"github.com/viant/scgraph/segment"
)

const (
	defaultMaxSegments = 1024
	defaultReadyQueue  = 8
)

// Option configures Storage.
type Option func(s *Storage)

// WithLogger sets the logger; defaults to logrus.StandardLogger().
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Storage) { s.logger = logger }
}

// WithBus shares an event bus; a private bus is created otherwise.
func WithBus(bus *event.Bus) Option {
	return func(s *Storage) { s.bus = bus }
}

// WithContentStore sets the sc-link payload backend.
func WithContentStore(store content.Store) Option {
	return func(s *Storage) { s.content = store }
}

// WithMetrics plugs metrics hooks.
func WithMetrics(m Metrics) Option {
	return func(s *Storage) { s.metrics = m }
}

// WithSegmentSize sets the number of slots per segment (at most 65536).
func WithSegmentSize(slots int) Option {
	return func(s *Storage) { s.segmentSize = slots }
}

// WithMaxSegments caps the number of segments (at most 65535).
func WithMaxSegments(n int) Option {
	return func(s *Storage) { s.maxSegments = n }
}

// WithProbeWindow bounds the free slot search within a segment.
func WithProbeWindow(n int) Option {
	return func(s *Storage) { s.probeWindow = n }
}

// WithReadyQueue sets how many segments with free slots are remembered.
func WithReadyQueue(n int) Option {
	return func(s *Storage) { s.readyQueue = n }
}

// WithGCInterval enables the background sweeper. Zero disables it.
func WithGCInterval(d time.Duration) Option {
	return func(s *Storage) { s.gcInterval = d }
}

// Metrics allows plugging metrics hooks for storage events.
type Metrics interface {
	OnCreate(kind sctype.Kind)
	OnErase(kind sctype.Kind)
	OnCollect(elapsed time.Duration, reclaimed int)
	OnSegments(count int)
	OnIterators(count int)
}

type nopMetrics struct{}

func (nopMetrics) OnCreate(sctype.Kind)         {}
func (nopMetrics) OnErase(sctype.Kind)          {}
func (nopMetrics) OnCollect(time.Duration, int) {}
func (nopMetrics) OnSegments(int)               {}
func (nopMetrics) OnIterators(int)              {}

func (s *Storage) applyDefaults() {
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.bus == nil {
		s.bus = event.New()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.segmentSize <= 0 || s.segmentSize > segment.DefaultCapacity {
		s.segmentSize = segment.DefaultCapacity
	}
	if s.maxSegments <= 0 {
		s.maxSegments = defaultMaxSegments
	}
	if s.maxSegments > 1<<16-1 {
		s.maxSegments = 1<<16 - 1
	}
	if s.probeWindow <= 0 {
		s.probeWindow = segment.DefaultProbeWindow
	}
	if s.readyQueue <= 0 {
		s.readyQueue = defaultReadyQueue
	}
}
