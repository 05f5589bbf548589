package storage

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/element"
)

type shape3 uint8

const (
	shapeFAA shape3 = iota + 1
	shapeAAF
	shapeFAF
	shapeAFA
	shapeFFA
	shapeAFF
	shapeFFF
)

var shapes3 = map[string]shape3{
	"FAA": shapeFAA, "AAF": shapeAAF, "FAF": shapeFAF,
	"AFA": shapeAFA, "FFA": shapeFFA, "AFF": shapeAFF, "FFF": shapeFFF,
}

// Iterator3 enumerates triples (begin, connector, end) matching a pattern.
//
// Scans seed from a fixed slot: outgoing list of a fixed begin, incoming
// list of a fixed end, or the fixed connector itself. Results follow
// incidence list order, most recently created connector first. The cursor
// only ever rests on a connector that was alive when yielded, so a
// collection gated by the iterator's captured clock never reclaims it.
type Iterator3 struct {
	s       *Storage
	id      uint64
	pattern [3]Slot
	shape   shape3
	values  [3]addr.Addr
	cursor  addr.Addr
	started bool
	done    bool
	closed  sync.Once
	cleanup runtime.Cleanup
}

// Iterator3 creates a triple iterator. Call Close, or exhaust it, to release
// its hold on garbage collection.
func (s *Storage) Iterator3(p1, p2, p3 Slot) (*Iterator3, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.graph.RLock()
	defer s.graph.RUnlock()
	return s.newIterator3(p1, p2, p3, true)
}

// newIterator3 builds an iterator; the caller holds the graph read lock.
func (s *Storage) newIterator3(p1, p2, p3 Slot, register bool) (*Iterator3, error) {
	pattern := [3]Slot{p1, p2, p3}
	code := string([]byte{p1.code(), p2.code(), p3.code()})
	shape, ok := shapes3[code]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedPattern, "iterator3 %s", code)
	}
	it := &Iterator3{s: s, pattern: pattern, shape: shape}
	if register {
		it.id, _ = s.register()
		it.cleanup = releaseOnDrop(it, s, it.id)
	}
	// a pattern anchored at a dead element yields nothing
	for _, slot := range pattern {
		if slot.IsFixed() && !s.IsAlive(slot.Addr) {
			it.finish()
			break
		}
	}
	return it, nil
}

// Next advances to the next match. Once it returns false it keeps returning false.
func (it *Iterator3) Next() bool {
	if it.done {
		return false
	}
	it.s.graph.RLock()
	ok := it.next()
	it.s.graph.RUnlock()
	return ok
}

// Value returns slot i (0..2) of the current match.
func (it *Iterator3) Value(i int) addr.Addr {
	if i < 0 || i >= len(it.values) {
		return addr.Empty
	}
	return it.values[i]
}

// Values returns the current match.
func (it *Iterator3) Values() [3]addr.Addr { return it.values }

// Close releases the iterator. It is safe to call more than once.
func (it *Iterator3) Close() {
	it.done = true
	it.closed.Do(func() {
		if it.id != 0 {
			it.cleanup.Stop()
			it.s.deregister(it.id)
		}
	})
}

func (it *Iterator3) finish() {
	it.values = [3]addr.Addr{}
	it.Close()
}

// next is Next without locking; the caller holds the graph read lock.
func (it *Iterator3) next() bool {
	if it.done {
		return false
	}
	var found bool
	switch it.shape {
	case shapeFAA, shapeFAF:
		found = it.scanOutgoing()
	case shapeAAF:
		found = it.scanIncoming()
	default:
		found = it.checkFixedConnector()
	}
	if !found {
		it.finish()
	}
	return found
}

func (it *Iterator3) scanOutgoing() bool {
	begin := it.pattern[0].Addr
	for {
		arcAddr, arc, ok := it.advance(begin, true)
		if !ok {
			return false
		}
		if it.accept(arcAddr, arc) {
			return true
		}
	}
}

func (it *Iterator3) scanIncoming() bool {
	end := it.pattern[2].Addr
	for {
		arcAddr, arc, ok := it.advance(end, false)
		if !ok {
			return false
		}
		if it.accept(arcAddr, arc) {
			return true
		}
	}
}

// advance moves the cursor to the next connector of anchor's outgoing or
// incoming list.
func (it *Iterator3) advance(anchor addr.Addr, outgoing bool) (addr.Addr, element.Element, bool) {
	var next addr.Addr
	if !it.started {
		it.started = true
		el, err := it.s.load(anchor)
		if err != nil {
			return addr.Empty, element.Element{}, false
		}
		next = el.FirstIn
		if outgoing {
			next = el.FirstOut
		}
	} else {
		current, err := it.s.load(it.cursor)
		if err != nil {
			return addr.Empty, element.Element{}, false
		}
		next = current.Connector.NextIn
		if outgoing {
			next = current.Connector.NextOut
		}
	}
	if next.IsEmpty() {
		return addr.Empty, element.Element{}, false
	}
	arc, err := it.s.load(next)
	if err != nil {
		return addr.Empty, element.Element{}, false
	}
	// the cursor only moves onto alive connectors; dead ones are skipped
	// within a single step
	for !arc.IsAlive() {
		if outgoing {
			next = arc.Connector.NextOut
		} else {
			next = arc.Connector.NextIn
		}
		if next.IsEmpty() {
			return addr.Empty, element.Element{}, false
		}
		if arc, err = it.s.load(next); err != nil {
			return addr.Empty, element.Element{}, false
		}
	}
	it.cursor = next
	return next, arc, true
}

// accept checks a connector against the pattern and records the match.
func (it *Iterator3) accept(arcAddr addr.Addr, arc element.Element) bool {
	if !it.pattern[1].matches(arcAddr, arc.Type) {
		return false
	}
	begin, end := arc.Connector.Begin, arc.Connector.End
	beginEl, err := it.s.load(begin)
	if err != nil || !beginEl.IsAlive() || !it.pattern[0].matches(begin, beginEl.Type) {
		return false
	}
	endEl, err := it.s.load(end)
	if err != nil || !endEl.IsAlive() || !it.pattern[2].matches(end, endEl.Type) {
		return false
	}
	it.values = [3]addr.Addr{begin, arcAddr, end}
	return true
}

func (it *Iterator3) checkFixedConnector() bool {
	if it.started {
		return false
	}
	it.started = true
	arcAddr := it.pattern[1].Addr
	arc, err := it.s.load(arcAddr)
	if err != nil || !arc.IsAlive() || !arc.Type.IsConnector() {
		return false
	}
	return it.accept(arcAddr, arc)
}
