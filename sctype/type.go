// Package sctype defines the persisted type tag bits of sc-elements.
//
// The layout is stable: it is written as-is into segment files and is used
// directly by query constraints. Node structure subtypes reuse the bits that
// carry arc subtypes, since a tag is never both a node and a connector.
package sctype

import (
	"strings"

	"github.com/pkg/errors"
)

// Type is a set of type tag bits.
type Type uint16

// Element class bits.
const (
	Node      Type = 0x0001
	Link      Type = 0x0002
	Edge      Type = 0x0004 // undirected connector
	Arc       Type = 0x0008 // directed connector
	ArcAccess Type = 0x0010 // directed membership arc
)

// Constancy bits.
const (
	Const Type = 0x0020
	Var   Type = 0x0040
)

// Access arc subtype bits.
const (
	Pos  Type = 0x0080
	Neg  Type = 0x0100
	Fuz  Type = 0x0200
	Temp Type = 0x0400
	Perm Type = 0x0800
)

// Node structure subtype bits (share bit positions with arc subtypes).
const (
	NodeTuple    Type = 0x0080
	NodeStruct   Type = 0x0100
	NodeRole     Type = 0x0200
	NodeNoRole   Type = 0x0400
	NodeClass    Type = 0x0800
	NodeAbstract Type = 0x1000
	NodeMaterial Type = 0x2000
)

// Masks.
const (
	ElementMask   = Node | Link | Edge | Arc | ArcAccess
	ConnectorMask = Edge | Arc | ArcAccess
	ConstancyMask = Const | Var
	PolarityMask  = Pos | Neg | Fuz
	DurationMask  = Temp | Perm
	ArcMask       = PolarityMask | DurationMask
	NodeMask      = NodeTuple | NodeStruct | NodeRole | NodeNoRole | NodeClass | NodeAbstract | NodeMaterial
)

// Common composite types.
const (
	Unknown Type = 0

	ConstNode       = Node | Const
	VarNode         = Node | Var
	ConstNodeTuple  = Node | Const | NodeTuple
	ConstNodeStruct = Node | Const | NodeStruct
	ConstNodeRole   = Node | Const | NodeRole
	ConstNodeNoRole = Node | Const | NodeNoRole
	ConstNodeClass  = Node | Const | NodeClass
	VarNodeRole     = Node | Var | NodeRole

	ConstLink = Link | Const
	VarLink   = Link | Var

	ConstEdge = Edge | Const
	VarEdge   = Edge | Var
	ConstArc  = Arc | Const
	VarArc    = Arc | Var

	ConstPermPosArc = ArcAccess | Const | Pos | Perm
	ConstPermNegArc = ArcAccess | Const | Neg | Perm
	ConstTempPosArc = ArcAccess | Const | Pos | Temp
	ConstTempNegArc = ArcAccess | Const | Neg | Temp
	ConstFuzArc     = ArcAccess | Const | Fuz
	VarPermPosArc   = ArcAccess | Var | Pos | Perm
	VarPermNegArc   = ArcAccess | Var | Neg | Perm
)

// Kind is the closed variant an element belongs to.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNode
	KindLink
	KindConnector
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindLink:
		return "link"
	case KindConnector:
		return "connector"
	}
	return "unknown"
}

// ErrInvalidType reports a tag that cannot describe an element.
var ErrInvalidType = errors.New("sctype: invalid type")

// Kind derives the element variant from the class bits.
func (t Type) Kind() Kind {
	switch t & ElementMask {
	case Node:
		return KindNode
	case Link:
		return KindLink
	case Edge, Arc, ArcAccess:
		return KindConnector
	}
	return KindUnknown
}

// IsNode reports whether t is a node tag.
func (t Type) IsNode() bool { return t.Kind() == KindNode }

// IsLink reports whether t is a link tag.
func (t Type) IsLink() bool { return t.Kind() == KindLink }

// IsConnector reports whether t is an edge, arc or access arc tag.
func (t Type) IsConnector() bool { return t.Kind() == KindConnector }

// IsDirected reports whether the connector has a begin-to-end direction.
func (t Type) IsDirected() bool {
	return t&(Arc|ArcAccess) != 0
}

// IsConst reports the const bit.
func (t Type) IsConst() bool { return t&Const != 0 }

// IsVar reports the var bit.
func (t Type) IsVar() bool { return t&Var != 0 }

// Matches reports whether t carries every bit of the constraint c.
// Unknown matches everything.
func (t Type) Matches(c Type) bool {
	return t&c == c
}

// Validate checks that t describes exactly one element variant with a
// consistent set of subtype bits. It is applied once, when an element is
// created, so that hot paths can trust the stored tag.
func (t Type) Validate() error {
	kind := t.Kind()
	if kind == KindUnknown {
		return errors.Wrapf(ErrInvalidType, "%#04x: no single element class", uint16(t))
	}
	if t&ConstancyMask == ConstancyMask {
		return errors.Wrapf(ErrInvalidType, "%#04x: both const and var", uint16(t))
	}
	switch kind {
	case KindLink:
		if t&^(Link|ConstancyMask) != 0 {
			return errors.Wrapf(ErrInvalidType, "%#04x: link carries subtype bits", uint16(t))
		}
	case KindNode:
		if !atMostOne(t & NodeMask) {
			return errors.Wrapf(ErrInvalidType, "%#04x: several node subtypes", uint16(t))
		}
	case KindConnector:
		if t&ArcMask != 0 && t&ArcAccess == 0 {
			return errors.Wrapf(ErrInvalidType, "%#04x: polarity/duration only apply to access arcs", uint16(t))
		}
		if !atMostOne(t&PolarityMask) || !atMostOne(t&DurationMask) {
			return errors.Wrapf(ErrInvalidType, "%#04x: conflicting arc subtypes", uint16(t))
		}
		if t&(NodeAbstract|NodeMaterial) != 0 {
			return errors.Wrapf(ErrInvalidType, "%#04x: node subtype on connector", uint16(t))
		}
	}
	return nil
}

func atMostOne(bits Type) bool {
	return bits&(bits-1) == 0
}

var names = []struct {
	bit  Type
	name string
}{
	{Node, "node"}, {Link, "link"}, {Edge, "edge"}, {Arc, "arc"}, {ArcAccess, "access"},
	{Const, "const"}, {Var, "var"},
}

var arcNames = []struct {
	bit  Type
	name string
}{
	{Pos, "pos"}, {Neg, "neg"}, {Fuz, "fuz"}, {Temp, "temp"}, {Perm, "perm"},
}

var nodeNames = []struct {
	bit  Type
	name string
}{
	{NodeTuple, "tuple"}, {NodeStruct, "struct"}, {NodeRole, "role"}, {NodeNoRole, "norole"},
	{NodeClass, "class"}, {NodeAbstract, "abstract"}, {NodeMaterial, "material"},
}

func (t Type) String() string {
	if t == Unknown {
		return "unknown"
	}
	var parts []string
	for _, n := range names {
		if t&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	subtypes := arcNames
	if t&Node != 0 {
		subtypes = nodeNames
	}
	for _, n := range subtypes {
		if t&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
