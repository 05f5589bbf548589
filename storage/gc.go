package storage

import (
	"time"

	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/element"
)

// CollectGarbage reclaims the slots of erased elements that no outstanding
// iterator can reach and returns how many were freed.
//
// An element is reclaimed once its delete timestamp is older than every
// iterator's captured clock and no arc remains spliced into its lists.
// Eligible connectors are unlinked first, so endpoints and arcs erased in
// the same cascade are reclaimed in a single pass.
func (s *Storage) CollectGarbage() int {
	started := time.Now()
	s.graph.Lock()
	oldest := s.oldestRetained()
	var eligible []addr.Addr
	for _, seg := range s.segmentList() {
		id := seg.ID()
		seg.Range(func(offset uint16, el *element.Element) bool {
			if el.DeleteTS != 0 && el.DeleteTS < oldest {
				eligible = append(eligible, addr.Encode(id, offset))
			}
			return true
		})
	}
	for _, a := range eligible {
		if el, err := s.load(a); err == nil && el.Type.IsConnector() {
			s.unlink(a, el.Connector)
		}
	}
	freed := map[uint16]bool{}
	reclaimed := 0
	for _, a := range eligible {
		el, err := s.load(a)
		if err != nil || el.HasIncidence() {
			continue
		}
		if err := s.segment(a.Segment()).Free(a.Offset()); err == nil {
			reclaimed++
			freed[a.Segment()] = true
		}
	}
	s.graph.Unlock()
	for id := range freed {
		s.pushReady(id)
	}
	elapsed := time.Since(started)
	s.metrics.OnCollect(elapsed, reclaimed)
	if reclaimed > 0 {
		s.logger.WithField("count", reclaimed).WithField("pending", len(eligible)-reclaimed).
			WithField("elapsed", elapsed.String()).Debug("garbage collected")
	}
	return reclaimed
}

// unlink splices the connector at a out of its begin's outgoing list and
// its end's incoming list. A connector already unlinked by an earlier pass
// is left untouched. The caller holds the graph lock.
func (s *Storage) unlink(a addr.Addr, c element.Connector) {
	if c.PrevOut.IsEmpty() {
		_ = s.update(c.Begin, func(el *element.Element) {
			if el.FirstOut == a {
				el.FirstOut = c.NextOut
			}
		})
	} else {
		_ = s.update(c.PrevOut, func(el *element.Element) { el.Connector.NextOut = c.NextOut })
	}
	if !c.NextOut.IsEmpty() {
		_ = s.update(c.NextOut, func(el *element.Element) { el.Connector.PrevOut = c.PrevOut })
	}
	if c.PrevIn.IsEmpty() {
		_ = s.update(c.End, func(el *element.Element) {
			if el.FirstIn == a {
				el.FirstIn = c.NextIn
			}
		})
	} else {
		_ = s.update(c.PrevIn, func(el *element.Element) { el.Connector.NextIn = c.NextIn })
	}
	if !c.NextIn.IsEmpty() {
		_ = s.update(c.NextIn, func(el *element.Element) { el.Connector.PrevIn = c.PrevIn })
	}
	_ = s.update(a, func(el *element.Element) {
		el.Connector.PrevOut, el.Connector.NextOut = addr.Empty, addr.Empty
		el.Connector.PrevIn, el.Connector.NextIn = addr.Empty, addr.Empty
	})
}

func (s *Storage) startSweeper() {
	if s.gcInterval <= 0 {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.gcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.CollectGarbage()
			}
		}
	}()
}

func (s *Storage) stopSweeper() {
	if s.stopCh == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}
