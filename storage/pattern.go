package storage

import (
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/sctype"
)

// Slot is one position of an iterator pattern: either a fixed address or a
// type constraint. The zero constraint matches any element.
type Slot struct {
	Addr addr.Addr
	Type sctype.Type
}

// Fixed returns a slot bound to a.
func Fixed(a addr.Addr) Slot { return Slot{Addr: a} }

// Any returns a slot constrained to elements whose type carries t.
func Any(t sctype.Type) Slot { return Slot{Type: t} }

// IsFixed reports whether the slot is bound to an address.
func (s Slot) IsFixed() bool { return !s.Addr.IsEmpty() }

func (s Slot) matches(a addr.Addr, t sctype.Type) bool {
	if s.IsFixed() {
		return s.Addr == a
	}
	return t.Matches(s.Type)
}

func (s Slot) code() byte {
	if s.IsFixed() {
		return 'F'
	}
	return 'A'
}
