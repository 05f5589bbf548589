package storage

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/viant/scgraph/addr"
)

var shapes5 = map[string]bool{
	"FAAAF": true, "AAFAF": true, "FAFAF": true,
	"FAFAA": true, "FAAAA": true, "AAFAA": true,
}

// Iterator5 enumerates quintuples (p1, arc1, p3, arc2, p5) where arc1 goes
// from p1 to p3 and arc2 goes from p5 to arc1. It runs an outer triple scan
// for (p1, arc1, p3) and, per outer match, an inner scan for (p5, arc2, arc1).
type Iterator5 struct {
	s       *Storage
	id      uint64
	pattern [5]Slot
	outer   *Iterator3
	inner   *Iterator3
	values  [5]addr.Addr
	done    bool
	closed  sync.Once
	cleanup runtime.Cleanup
}

// Iterator5 creates a quintuple iterator. Supported shapes, F for a fixed
// address and A for a type constraint: FAAAF, AAFAF, FAFAF, FAFAA, FAAAA, AAFAA.
func (s *Storage) Iterator5(p1, p2, p3, p4, p5 Slot) (*Iterator5, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	pattern := [5]Slot{p1, p2, p3, p4, p5}
	code := make([]byte, 0, len(pattern))
	for _, slot := range pattern {
		code = append(code, slot.code())
	}
	if !shapes5[string(code)] {
		return nil, errors.Wrapf(ErrUnsupportedPattern, "iterator5 %s", code)
	}
	s.graph.RLock()
	defer s.graph.RUnlock()
	outer, err := s.newIterator3(p1, p2, p3, false)
	if err != nil {
		return nil, err
	}
	it := &Iterator5{s: s, pattern: pattern, outer: outer}
	it.id, _ = s.register()
	it.cleanup = releaseOnDrop(it, s, it.id)
	if p5.IsFixed() && !s.IsAlive(p5.Addr) {
		it.Close()
	}
	return it, nil
}

// Next advances to the next match. Once it returns false it keeps returning false.
func (it *Iterator5) Next() bool {
	if it.done {
		return false
	}
	it.s.graph.RLock()
	ok := it.next()
	it.s.graph.RUnlock()
	if !ok {
		it.Close()
	}
	return ok
}

func (it *Iterator5) next() bool {
	for {
		if it.inner != nil && it.inner.next() {
			v := it.inner.values
			it.values[3], it.values[4] = v[1], v[0]
			return true
		}
		if !it.outer.next() {
			return false
		}
		v := it.outer.values
		it.values[0], it.values[1], it.values[2] = v[0], v[1], v[2]
		inner, err := it.s.newIterator3(it.pattern[4], it.pattern[3], Fixed(v[1]), false)
		if err != nil {
			return false
		}
		it.inner = inner
	}
}

// Value returns slot i (0..4) of the current match.
func (it *Iterator5) Value(i int) addr.Addr {
	if i < 0 || i >= len(it.values) {
		return addr.Empty
	}
	return it.values[i]
}

// Values returns the current match.
func (it *Iterator5) Values() [5]addr.Addr { return it.values }

// Close releases the iterator. It is safe to call more than once.
func (it *Iterator5) Close() {
	it.done = true
	it.values = [5]addr.Addr{}
	it.closed.Do(func() {
		it.cleanup.Stop()
		it.s.deregister(it.id)
	})
}
