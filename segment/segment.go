// Package segment implements the fixed-capacity slot array backing storage.
//
// Allocation first reuses recently freed offsets from a small ring buffer,
// then bumps the high-water mark, and finally probes a bounded window
// forward and backward from a rotating cursor. A segment never scans all
// of its slots to satisfy one allocation.
package segment

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/viant/scgraph/element"
)

const (
	// DefaultCapacity is the number of slots per segment.
	DefaultCapacity = 1 << 16
	// DefaultProbeWindow bounds the free slot search.
	DefaultProbeWindow = 512
	freedBufferSize    = 32
)

var (
	// ErrFull is returned when no free slot was found within the probe window.
	// The segment then keeps reporting full until a slot is freed.
	ErrFull = errors.New("segment: full")
	// ErrInvalidOffset is returned for out of range or free offsets.
	ErrInvalidOffset = errors.New("segment: invalid offset")
)

// Segment is a fixed array of element slots with free-slot tracking.
type Segment struct {
	id     uint16
	window int

	mu    sync.RWMutex
	slots []element.Element
	top   int // slots at or above top were never allocated
	used  int
	// ring of recently freed offsets
	freed     [freedBufferSize]uint16
	freedHead int
	freedLen  int
	cursor    int
	// set when a probe found nothing; cleared by Free
	exhausted bool
}

// New creates an empty segment.
func New(id uint16, capacity, window int) *Segment {
	if capacity <= 0 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultProbeWindow
	}
	return &Segment{id: id, window: window, slots: make([]element.Element, capacity)}
}

// ID returns the segment id.
func (s *Segment) ID() uint16 { return s.id }

// Capacity returns the number of slots.
func (s *Segment) Capacity() int { return len(s.slots) }

// Used returns the number of occupied slots.
func (s *Segment) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// HasFreeSlot reports whether Allocate may succeed.
func (s *Segment) HasFreeSlot() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.freedLen > 0 || s.top < len(s.slots) || (s.used < len(s.slots) && !s.exhausted)
}

// Allocate installs el in a free slot and returns its offset.
func (s *Segment) Allocate(el element.Element) (uint16, error) {
	if el.IsFree() {
		return 0, errors.Wrap(ErrInvalidOffset, "cannot allocate a free record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	offset, ok := s.findFree()
	if !ok {
		return 0, ErrFull
	}
	s.slots[offset] = el
	s.used++
	return uint16(offset), nil
}

func (s *Segment) findFree() (int, bool) {
	for s.freedLen > 0 {
		offset := int(s.freed[s.freedHead])
		s.freedHead = (s.freedHead + 1) % freedBufferSize
		s.freedLen--
		if s.slots[offset].IsFree() {
			return offset, true
		}
	}
	if s.top < len(s.slots) {
		offset := s.top
		s.top++
		return offset, true
	}
	if s.used >= len(s.slots) || s.exhausted {
		return 0, false
	}
	n := len(s.slots)
	for i := 0; i < s.window; i++ {
		if offset := (s.cursor + i) % n; s.slots[offset].IsFree() {
			s.cursor = (offset + 1) % n
			return offset, true
		}
		if offset := (s.cursor - 1 - i + n) % n; s.slots[offset].IsFree() {
			s.cursor = offset
			return offset, true
		}
	}
	// next search starts past the exhausted window
	s.cursor = (s.cursor + s.window) % n
	s.exhausted = true
	return 0, false
}

// Free clears the slot at offset and makes it reusable.
func (s *Segment) Free(offset uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(offset) >= s.top || s.slots[offset].IsFree() {
		return ErrInvalidOffset
	}
	s.slots[offset].Reset()
	s.used--
	s.exhausted = false
	if s.freedLen < freedBufferSize {
		s.freed[(s.freedHead+s.freedLen)%freedBufferSize] = offset
		s.freedLen++
	}
	return nil
}

// Get returns a copy of the occupied slot at offset.
func (s *Segment) Get(offset uint16) (element.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(offset) >= len(s.slots) || s.slots[offset].IsFree() {
		return element.Element{}, false
	}
	return s.slots[offset], true
}

// Update applies fn to the occupied slot at offset.
func (s *Segment) Update(offset uint16, fn func(el *element.Element)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(offset) >= len(s.slots) || s.slots[offset].IsFree() {
		return ErrInvalidOffset
	}
	fn(&s.slots[offset])
	return nil
}

// Range calls fn for every occupied slot while holding the read lock.
// fn must not call back into the segment.
func (s *Segment) Range(fn func(offset uint16, el *element.Element) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < s.top; i++ {
		if s.slots[i].IsFree() {
			continue
		}
		if !fn(uint16(i), &s.slots[i]) {
			return
		}
	}
}

// Snapshot returns the allocated prefix of the slot array.
func (s *Segment) Snapshot() []element.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]element.Element(nil), s.slots[:s.top]...)
}

// Restore rebuilds a segment from a slot prefix written by Snapshot.
func Restore(id uint16, capacity, window int, slots []element.Element) (*Segment, error) {
	s := New(id, capacity, window)
	if len(slots) > len(s.slots) {
		return nil, errors.Errorf("segment %d: %d slots exceed capacity %d", id, len(slots), len(s.slots))
	}
	copy(s.slots, slots)
	s.top = len(slots)
	for i := range slots {
		if slots[i].IsFree() {
			if s.freedLen < freedBufferSize {
				s.freed[(s.freedHead+s.freedLen)%freedBufferSize] = uint16(i)
				s.freedLen++
			}
			continue
		}
		s.used++
	}
	return s, nil
}
