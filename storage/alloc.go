package storage

import (
	"github.com/pkg/errors"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/element"
	"github.com/viant/scgraph/segment"
)

const maxAllocAttempts = 4096

// allocate installs el in a segment with a free slot.
func (s *Storage) allocate(el element.Element) (addr.Addr, error) {
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		seg := s.readySegment()
		if seg == nil {
			return addr.Empty, ErrOutOfCapacity
		}
		offset, err := seg.Allocate(el)
		if err == nil {
			return addr.Encode(seg.ID(), offset), nil
		}
		if !errors.Is(err, segment.ErrFull) {
			return addr.Empty, err
		}
		s.dropReady(seg.ID())
	}
	return addr.Empty, ErrOutOfCapacity
}

// readySegment returns a segment believed to have a free slot: the head of
// the ready queue, else the first segment found by scanning, else a new one.
func (s *Storage) readySegment() *segment.Segment {
	s.readyMu.Lock()
	var id uint16
	if len(s.ready) > 0 {
		id = s.ready[0]
	}
	s.readyMu.Unlock()
	if id != 0 {
		return s.segment(id)
	}
	for _, seg := range s.segmentList() {
		if seg.HasFreeSlot() {
			s.pushReady(seg.ID())
			return seg
		}
	}
	return s.addSegment()
}

func (s *Storage) addSegment() *segment.Segment {
	s.segMu.Lock()
	if n := len(s.segments); n > 0 && s.segments[n-1].HasFreeSlot() {
		// another goroutine just added one
		seg := s.segments[n-1]
		s.segMu.Unlock()
		s.pushReady(seg.ID())
		return seg
	}
	if len(s.segments) >= s.maxSegments {
		s.segMu.Unlock()
		return nil
	}
	seg := segment.New(uint16(len(s.segments)+1), s.segmentSize, s.probeWindow)
	s.segments = append(s.segments, seg)
	count := len(s.segments)
	s.segMu.Unlock()
	s.pushReady(seg.ID())
	s.metrics.OnSegments(count)
	s.logger.WithField("segment", seg.ID()).Debug("segment allocated")
	return seg
}

func (s *Storage) pushReady(id uint16) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	if len(s.ready) >= s.readyQueue {
		return
	}
	for _, candidate := range s.ready {
		if candidate == id {
			return
		}
	}
	s.ready = append(s.ready, id)
}

func (s *Storage) dropReady(id uint16) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	for i, candidate := range s.ready {
		if candidate == id {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return
		}
	}
}
