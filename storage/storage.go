// Package storage implements the sc-element store: segmented slot arena,
// incidence lists, cascading erase, clock gated garbage collection,
// pattern iterators and link content.
//
// Locking order is graph -> segment table -> segment -> ready queue. The
// graph lock is held exclusively by operations splicing incidence lists
// (arc creation, erase bookkeeping, collection) and shared by node and link
// creation and by iterator steps. Single element reads only take the lock
// of the segment holding the slot. Events are always emitted with no
// storage lock held.
package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/element"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/sctype"
	"github.com/viant/scgraph/segment"
)

// Storage owns segments and the logical clock.
type Storage struct {
	graph sync.RWMutex

	segMu    sync.RWMutex
	segments []*segment.Segment // segment id n lives at index n-1

	readyMu sync.Mutex
	ready   []uint16

	clock     atomic.Uint64
	iterMu    sync.Mutex
	iterSeq   uint64
	iterators map[uint64]uint64
	iterCount atomic.Int64

	logger      logrus.FieldLogger
	bus         *event.Bus
	content     content.Store
	metrics     Metrics
	segmentSize int
	maxSegments int
	probeWindow int
	readyQueue  int
	gcInterval  time.Duration

	closed   atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates an empty storage.
func New(opts ...Option) *Storage {
	s := &Storage{iterators: map[uint64]uint64{}}
	for _, opt := range opts {
		opt(s)
	}
	s.applyDefaults()
	s.clock.Store(1)
	s.startSweeper()
	return s
}

// Bus returns the event bus fired by this storage.
func (s *Storage) Bus() *event.Bus { return s.bus }

// Content returns the link content backend, if any.
func (s *Storage) Content() content.Store { return s.content }

// Clock returns the current logical clock value.
func (s *Storage) Clock() uint64 { return s.clock.Load() }

// SegmentSize returns the number of slots per segment.
func (s *Storage) SegmentSize() int { return s.segmentSize }

// Close stops the background sweeper. It does not close the content store.
func (s *Storage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.stopSweeper()
	return nil
}

func (s *Storage) segment(id uint16) *segment.Segment {
	s.segMu.RLock()
	defer s.segMu.RUnlock()
	if id == 0 || int(id) > len(s.segments) {
		return nil
	}
	return s.segments[id-1]
}

func (s *Storage) segmentList() []*segment.Segment {
	s.segMu.RLock()
	defer s.segMu.RUnlock()
	return append([]*segment.Segment(nil), s.segments...)
}

// load returns a copy of the occupied slot at a.
func (s *Storage) load(a addr.Addr) (element.Element, error) {
	if a.IsEmpty() {
		return element.Element{}, errors.Wrap(ErrInvalidAddress, "empty")
	}
	seg := s.segment(a.Segment())
	if seg == nil {
		return element.Element{}, errors.Wrapf(ErrInvalidAddress, "%v: no such segment", a)
	}
	el, ok := seg.Get(a.Offset())
	if !ok {
		return element.Element{}, errors.Wrapf(ErrInvalidAddress, "%v: free slot", a)
	}
	return el, nil
}

func (s *Storage) update(a addr.Addr, fn func(el *element.Element)) error {
	seg := s.segment(a.Segment())
	if seg == nil {
		return errors.Wrapf(ErrInvalidAddress, "%v: no such segment", a)
	}
	if err := seg.Update(a.Offset(), fn); err != nil {
		return errors.Wrapf(ErrInvalidAddress, "%v: free slot", a)
	}
	return nil
}

// Get returns a copy of the element at a. Logically deleted elements that
// were not reclaimed yet are returned too.
func (s *Storage) Get(a addr.Addr) (element.Element, error) {
	return s.load(a)
}

// IsAlive reports whether a holds an element that is not erased.
func (s *Storage) IsAlive(a addr.Addr) bool {
	el, err := s.load(a)
	return err == nil && el.IsAlive()
}

// IsErasing reports whether a is flagged for deletion; it holds inside
// EraseElement callbacks.
func (s *Storage) IsErasing(a addr.Addr) bool {
	el, err := s.load(a)
	return err == nil && el.Flags&element.FlagRequestDeletion != 0
}

// GetElementType returns the type tag at a.
func (s *Storage) GetElementType(a addr.Addr) (sctype.Type, error) {
	el, err := s.load(a)
	if err != nil {
		return sctype.Unknown, err
	}
	return el.Type, nil
}

// GetArcBegin returns the begin of the connector at a.
func (s *Storage) GetArcBegin(a addr.Addr) (addr.Addr, error) {
	c, err := s.connector(a)
	if err != nil {
		return addr.Empty, err
	}
	return c.Begin, nil
}

// GetArcEnd returns the end of the connector at a.
func (s *Storage) GetArcEnd(a addr.Addr) (addr.Addr, error) {
	c, err := s.connector(a)
	if err != nil {
		return addr.Empty, err
	}
	return c.End, nil
}

// GetArcInfo returns begin and end of the connector at a.
func (s *Storage) GetArcInfo(a addr.Addr) (begin, end addr.Addr, err error) {
	c, err := s.connector(a)
	if err != nil {
		return addr.Empty, addr.Empty, err
	}
	return c.Begin, c.End, nil
}

func (s *Storage) connector(a addr.Addr) (element.Connector, error) {
	el, err := s.load(a)
	if err != nil {
		return element.Connector{}, err
	}
	c, ok := el.Arc()
	if !ok {
		return element.Connector{}, errors.Wrapf(ErrWrongElementKind, "%v is a %v", a, el.Kind())
	}
	return *c, nil
}

// Stats summarises storage occupancy.
type Stats struct {
	Nodes      int    `json:"nodes"`
	Links      int    `json:"links"`
	Connectors int    `json:"connectors"`
	Deleted    int    `json:"deleted"`
	Segments   int    `json:"segments"`
	Capacity   int    `json:"capacity"`
	Iterators  int    `json:"iterators"`
	Clock      uint64 `json:"clock"`
}

// Stats counts elements by scanning every segment.
func (s *Storage) Stats() Stats {
	s.graph.RLock()
	defer s.graph.RUnlock()
	ret := Stats{Clock: s.clock.Load(), Iterators: int(s.iterCount.Load())}
	for _, seg := range s.segmentList() {
		ret.Segments++
		ret.Capacity += seg.Capacity()
		seg.Range(func(_ uint16, el *element.Element) bool {
			if !el.IsAlive() {
				ret.Deleted++
				return true
			}
			switch el.Kind() {
			case sctype.KindNode:
				ret.Nodes++
			case sctype.KindLink:
				ret.Links++
			case sctype.KindConnector:
				ret.Connectors++
			}
			return true
		})
	}
	return ret
}
