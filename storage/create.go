package storage

import (
	"github.com/pkg/errors"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/element"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/sctype"
)

// CreateNode creates a node of type t.
func (s *Storage) CreateNode(t sctype.Type) (addr.Addr, error) {
	if err := checkKind(t, sctype.KindNode); err != nil {
		return addr.Empty, err
	}
	return s.withCapacity(func() (addr.Addr, error) {
		return s.createLeaf(element.NewNode(t, 0))
	})
}

// CreateLink creates a const link without content.
func (s *Storage) CreateLink() (addr.Addr, error) {
	return s.CreateLinkOfType(sctype.ConstLink)
}

// CreateLinkOfType creates a link of type t.
func (s *Storage) CreateLinkOfType(t sctype.Type) (addr.Addr, error) {
	if err := checkKind(t, sctype.KindLink); err != nil {
		return addr.Empty, err
	}
	return s.withCapacity(func() (addr.Addr, error) {
		return s.createLeaf(element.NewLink(t, 0))
	})
}

// CreateArc creates a connector of type t from begin to end and prepends it
// to begin's outgoing and end's incoming lists.
func (s *Storage) CreateArc(t sctype.Type, begin, end addr.Addr) (addr.Addr, error) {
	if err := checkKind(t, sctype.KindConnector); err != nil {
		return addr.Empty, err
	}
	arc, err := s.withCapacity(func() (addr.Addr, error) {
		return s.createArc(t, begin, end)
	})
	if err != nil {
		return addr.Empty, err
	}
	s.bus.Emit(event.AddOutputArc, begin, arc)
	s.bus.Emit(event.AddInputArc, end, arc)
	return arc, nil
}

func checkKind(t sctype.Type, kind sctype.Kind) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Kind() != kind {
		return errors.Wrapf(ErrWrongElementKind, "%v is not a %v type", t, kind)
	}
	return nil
}

// withCapacity retries fn once after a collection when the store is full.
func (s *Storage) withCapacity(fn func() (addr.Addr, error)) (addr.Addr, error) {
	if s.closed.Load() {
		return addr.Empty, ErrClosed
	}
	a, err := fn()
	if errors.Is(err, ErrOutOfCapacity) && s.CollectGarbage() > 0 {
		a, err = fn()
	}
	return a, err
}

func (s *Storage) createLeaf(el element.Element) (addr.Addr, error) {
	s.graph.RLock()
	el.CreateTS = s.tick()
	a, err := s.allocate(el)
	s.graph.RUnlock()
	if err != nil {
		return addr.Empty, err
	}
	s.metrics.OnCreate(el.Kind())
	return a, nil
}

func (s *Storage) createArc(t sctype.Type, begin, end addr.Addr) (addr.Addr, error) {
	s.graph.Lock()
	defer s.graph.Unlock()
	b, err := s.load(begin)
	if err != nil {
		return addr.Empty, errors.Wrap(err, "arc begin")
	}
	e, err := s.load(end)
	if err != nil {
		return addr.Empty, errors.Wrap(err, "arc end")
	}
	if !b.IsAlive() || !e.IsAlive() {
		return addr.Empty, errors.Wrapf(ErrInvalidAddress, "arc endpoint %v -> %v is erased", begin, end)
	}
	el := element.NewConnector(t, begin, end, s.tick())
	el.Connector.NextOut = b.FirstOut
	el.Connector.NextIn = e.FirstIn
	arc, err := s.allocate(el)
	if err != nil {
		return addr.Empty, err
	}
	if next := b.FirstOut; !next.IsEmpty() {
		_ = s.update(next, func(n *element.Element) { n.Connector.PrevOut = arc })
	}
	_ = s.update(begin, func(n *element.Element) { n.FirstOut = arc })
	if next := e.FirstIn; !next.IsEmpty() {
		_ = s.update(next, func(n *element.Element) { n.Connector.PrevIn = arc })
	}
	_ = s.update(end, func(n *element.Element) { n.FirstIn = arc })
	s.metrics.OnCreate(el.Kind())
	return arc, nil
}
