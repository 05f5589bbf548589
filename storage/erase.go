package storage

import (
	"context"

	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/element"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/sctype"
)

// Erase deletes a and, breadth first, every arc incident to an erased
// element. Erased elements keep their slots, and stay linked into incidence
// lists, until a collection proves no iterator can reach them.
func (s *Storage) Erase(a addr.Addr) error {
	if s.closed.Load() {
		return ErrClosed
	}
	el, err := s.load(a)
	if err != nil {
		return err
	}
	if !el.IsAlive() {
		return ErrAlreadyErased
	}
	queue := []addr.Addr{a}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if !s.requestDeletion(current) {
			if current == a {
				// lost a race with a concurrent erase
				return ErrAlreadyErased
			}
			continue
		}
		s.bus.Emit(event.EraseElement, current, addr.Empty)
		erased, incident := s.stampDeleted(current)
		queue = append(queue, incident...)
		s.bus.Invalidate(current)
		s.afterErase(current, erased)
	}
	return nil
}

// requestDeletion flags a live element; it reports false when the element
// is already erased or being erased.
func (s *Storage) requestDeletion(a addr.Addr) bool {
	s.graph.Lock()
	defer s.graph.Unlock()
	claimed := false
	_ = s.update(a, func(el *element.Element) {
		if el.IsAlive() {
			el.Flags |= element.FlagRequestDeletion
			claimed = true
		}
	})
	return claimed
}

// stampDeleted sets the delete timestamp and returns the element together
// with its live incident arcs.
func (s *Storage) stampDeleted(a addr.Addr) (element.Element, []addr.Addr) {
	s.graph.Lock()
	defer s.graph.Unlock()
	var erased element.Element
	ts := s.tick()
	_ = s.update(a, func(el *element.Element) {
		el.DeleteTS = ts
		erased = *el
	})
	var incident []addr.Addr
	for cursor := erased.FirstOut; !cursor.IsEmpty(); {
		arc, err := s.load(cursor)
		if err != nil {
			break
		}
		if arc.IsAlive() {
			incident = append(incident, cursor)
		}
		cursor = arc.Connector.NextOut
	}
	for cursor := erased.FirstIn; !cursor.IsEmpty(); {
		arc, err := s.load(cursor)
		if err != nil {
			break
		}
		if arc.IsAlive() {
			incident = append(incident, cursor)
		}
		cursor = arc.Connector.NextIn
	}
	return erased, incident
}

func (s *Storage) afterErase(a addr.Addr, el element.Element) {
	switch el.Kind() {
	case sctype.KindConnector:
		s.bus.Emit(event.RemoveOutputArc, el.Connector.Begin, a)
		s.bus.Emit(event.RemoveInputArc, el.Connector.End, a)
	case sctype.KindLink:
		if sum, ok := el.Content(); ok && s.content != nil {
			if err := s.content.RemoveReference(context.Background(), a, sum); err != nil {
				s.logger.WithError(err).WithField("addr", a.String()).Warn("failed to release link content")
			}
		}
	}
	s.metrics.OnErase(el.Kind())
}
