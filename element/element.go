// Package element defines the fixed-size record stored in every segment slot.
package element

import (
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/sctype"
)

// Flags carry transient state bits.
type Flags uint8

const (
	// FlagRequestDeletion marks an element whose erase is in progress.
	FlagRequestDeletion Flags = 1 << iota
)

// Connector holds the incidence fields of an edge, arc or access arc.
// Incidence lists are doubly linked so that reclamation can splice an arc
// out in O(1); new arcs are prepended.
type Connector struct {
	Begin   addr.Addr
	End     addr.Addr
	PrevOut addr.Addr
	NextOut addr.Addr
	PrevIn  addr.Addr
	NextIn  addr.Addr
}

// Element is a slot record. Type == sctype.Unknown marks a free slot.
// Connector is meaningful only for connectors, Checksum only for links.
type Element struct {
	Type     sctype.Type
	Flags    Flags
	CreateTS uint64
	DeleteTS uint64
	// heads of the outgoing and incoming incidence lists
	FirstOut addr.Addr
	FirstIn  addr.Addr

	Connector Connector
	Checksum  content.Checksum
}

// NewNode returns a node record.
func NewNode(t sctype.Type, ts uint64) Element {
	return Element{Type: t, CreateTS: ts}
}

// NewLink returns a link record without content.
func NewLink(t sctype.Type, ts uint64) Element {
	return Element{Type: t, CreateTS: ts}
}

// NewConnector returns a connector record between begin and end.
func NewConnector(t sctype.Type, begin, end addr.Addr, ts uint64) Element {
	return Element{Type: t, CreateTS: ts, Connector: Connector{Begin: begin, End: end}}
}

// Kind returns the element variant.
func (e *Element) Kind() sctype.Kind { return e.Type.Kind() }

// IsFree reports an unoccupied slot.
func (e *Element) IsFree() bool { return e.Type == sctype.Unknown }

// IsAlive reports an occupied slot that is neither erased nor being erased.
func (e *Element) IsAlive() bool {
	return !e.IsFree() && e.DeleteTS == 0 && e.Flags&FlagRequestDeletion == 0
}

// IsDeleted reports a logically deleted element still occupying its slot.
func (e *Element) IsDeleted() bool {
	return !e.IsFree() && e.DeleteTS != 0
}

// Arc returns the connector fields when e is a connector.
func (e *Element) Arc() (*Connector, bool) {
	if e.Kind() != sctype.KindConnector {
		return nil, false
	}
	return &e.Connector, true
}

// Content returns the checksum of a link with content.
func (e *Element) Content() (content.Checksum, bool) {
	if e.Kind() != sctype.KindLink || e.Checksum.IsZero() {
		return content.Checksum{}, false
	}
	return e.Checksum, true
}

// HasIncidence reports whether any arc is still spliced into e's lists.
func (e *Element) HasIncidence() bool {
	return !e.FirstOut.IsEmpty() || !e.FirstIn.IsEmpty()
}

// Reset clears the slot.
func (e *Element) Reset() {
	*e = Element{}
}
