package memstore

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
)

// Store is a simple in-memory implementation of content.Store.
// It is intended for testing and for ephemeral graphs.
type Store struct {
	mu      sync.RWMutex
	entries map[content.Checksum]*entry
	stats   content.Stats
	closed  bool
}

type entry struct {
	data []byte
	refs map[addr.Addr]struct{}
}

// New creates a new in-memory content store.
func New() *Store {
	return &Store{entries: map[content.Checksum]*entry{}}
}

// Write stores a copy of the payload under checksum.
func (s *Store) Write(ctx context.Context, checksum content.Checksum, r io.Reader) error {
	data, err := content.VerifiedPayload(checksum, r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return content.ErrClosed
	}
	if e, ok := s.entries[checksum]; ok {
		return content.SamePayload(e.data, data)
	}
	s.entries[checksum] = &entry{data: data, refs: map[addr.Addr]struct{}{}}
	s.stats.Payloads++
	s.stats.Bytes += uint64(len(data))
	return nil
}

// Read returns a reader over a copy of the payload.
func (s *Store) Read(ctx context.Context, checksum content.Checksum) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, content.ErrClosed
	}
	e, ok := s.entries[checksum]
	if !ok {
		return nil, content.ErrNotFound
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return content.ReadCloser(out), nil
}

// AddReference records a link referencing checksum.
func (s *Store) AddReference(ctx context.Context, a addr.Addr, checksum content.Checksum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return content.ErrClosed
	}
	e, ok := s.entries[checksum]
	if !ok {
		return content.ErrNotFound
	}
	if _, ok := e.refs[a]; !ok {
		e.refs[a] = struct{}{}
		s.stats.References++
	}
	return nil
}

// RemoveReference drops a link reference and discards unreferenced payloads.
func (s *Store) RemoveReference(ctx context.Context, a addr.Addr, checksum content.Checksum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return content.ErrClosed
	}
	e, ok := s.entries[checksum]
	if !ok {
		return nil
	}
	if _, ok := e.refs[a]; ok {
		delete(e.refs, a)
		s.stats.References--
	}
	if len(e.refs) == 0 {
		delete(s.entries, checksum)
		s.stats.Payloads--
		s.stats.Bytes -= uint64(len(e.data))
	}
	return nil
}

// FindByChecksum lists referencing links in address order.
func (s *Store) FindByChecksum(ctx context.Context, checksum content.Checksum) ([]addr.Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, content.ErrClosed
	}
	e, ok := s.entries[checksum]
	if !ok {
		return nil, nil
	}
	ret := make([]addr.Addr, 0, len(e.refs))
	for a := range e.refs {
		ret = append(ret, a)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

// Close marks the store as closed. Further ops return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// Stats returns current stats snapshot.
func (s *Store) Stats() content.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

var _ content.Store = (*Store)(nil)
var _ content.StatsProvider = (*Store)(nil)
