package storage

import "runtime"

// tick returns the timestamp for a mutation. The clock only advances while
// iterators are outstanding; otherwise no collection needs to be gated.
func (s *Storage) tick() uint64 {
	if s.iterCount.Load() > 0 {
		return s.clock.Add(1)
	}
	return s.clock.Load()
}

// register records the clock value captured by a new iterator.
// Callers hold the graph read lock so that a concurrent collection cannot
// miss the registration.
func (s *Storage) register() (id, ts uint64) {
	s.iterMu.Lock()
	s.iterSeq++
	id = s.iterSeq
	ts = s.clock.Load()
	s.iterators[id] = ts
	count := s.iterCount.Add(1)
	s.iterMu.Unlock()
	s.metrics.OnIterators(int(count))
	return id, ts
}

type registration struct {
	s  *Storage
	id uint64
}

// releaseOnDrop deregisters id once owner becomes unreachable, so a cursor
// dropped without Close does not hold back collection.
func releaseOnDrop[T any](owner *T, s *Storage, id uint64) runtime.Cleanup {
	return runtime.AddCleanup(owner, func(r registration) {
		r.s.deregister(r.id)
	}, registration{s: s, id: id})
}

func (s *Storage) deregister(id uint64) {
	s.iterMu.Lock()
	if _, ok := s.iterators[id]; !ok {
		s.iterMu.Unlock()
		return
	}
	delete(s.iterators, id)
	count := s.iterCount.Add(-1)
	s.iterMu.Unlock()
	s.metrics.OnIterators(int(count))
}

// oldestRetained returns the smallest clock value captured by a live
// iterator, or clock+1 when there is none.
func (s *Storage) oldestRetained() uint64 {
	s.iterMu.Lock()
	defer s.iterMu.Unlock()
	oldest := s.clock.Load() + 1
	for _, ts := range s.iterators {
		if ts < oldest {
			oldest = ts
		}
	}
	return oldest
}
