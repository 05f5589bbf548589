package storage

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/element"
)

const maxReportedProblems = 10

// Check walks every element's incidence lists and verifies back pointers,
// endpoints and the absence of live arcs on erased endpoints.
func (s *Storage) Check() error {
	s.graph.RLock()
	defer s.graph.RUnlock()
	var problems []string
	report := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	type entry struct {
		a  addr.Addr
		el element.Element
	}
	var all []entry
	for _, seg := range s.segmentList() {
		id := seg.ID()
		seg.Range(func(offset uint16, el *element.Element) bool {
			all = append(all, entry{a: addr.Encode(id, offset), el: *el})
			return true
		})
	}
	occupied := len(all)
	for _, e := range all {
		if err := e.el.Type.Validate(); err != nil {
			report("%v: %v", e.a, err)
		}
		if c, ok := e.el.Arc(); ok && e.el.IsAlive() {
			for _, endpoint := range []addr.Addr{c.Begin, c.End} {
				if el, err := s.load(endpoint); err != nil || !el.IsAlive() {
					report("%v: live connector references dead endpoint %v", e.a, endpoint)
				}
			}
		}
		s.checkList(e.a, e.el.FirstOut, true, occupied, report)
		s.checkList(e.a, e.el.FirstIn, false, occupied, report)
		if len(problems) >= maxReportedProblems {
			break
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Wrap(ErrCorrupt, strings.Join(problems, "; "))
}

func (s *Storage) checkList(owner, head addr.Addr, outgoing bool, limit int, report func(string, ...interface{})) {
	prev := addr.Empty
	steps := 0
	for cursor := head; !cursor.IsEmpty(); steps++ {
		if steps > limit {
			report("%v: incidence list cycle", owner)
			return
		}
		arc, err := s.load(cursor)
		if err != nil {
			report("%v: list references free slot %v", owner, cursor)
			return
		}
		c, ok := arc.Arc()
		if !ok {
			report("%v: list references non connector %v", owner, cursor)
			return
		}
		endpoint, back, next := c.Begin, c.PrevOut, c.NextOut
		if !outgoing {
			endpoint, back, next = c.End, c.PrevIn, c.NextIn
		}
		if endpoint != owner {
			report("%v: connector %v listed under wrong endpoint %v", owner, cursor, endpoint)
		}
		if back != prev {
			report("%v: connector %v back pointer %v, expected %v", owner, cursor, back, prev)
		}
		prev, cursor = cursor, next
	}
}
