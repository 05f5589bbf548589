// Package addr defines the two-part handle used to address sc-elements.
//
// An Addr packs a segment id and an offset within that segment into a single
// uint32: the high 16 bits hold the segment, the low 16 bits the offset.
// Segment ids start at 1, so the zero value is the empty sentinel and can
// never alias a live slot.
package addr

import "fmt"

const (
	// MaxSegments is the largest segment id an Addr can carry.
	MaxSegments = 1<<16 - 1
	// MaxOffset is the largest offset an Addr can carry.
	MaxOffset = 1<<16 - 1

	segmentShift = 16
	offsetMask   = 1<<segmentShift - 1
)

// Addr identifies an sc-element slot: (segment, offset).
type Addr uint32

// Empty is the reserved "no element" sentinel.
const Empty Addr = 0

// Encode packs segment and offset into an Addr.
func Encode(segment, offset uint16) Addr {
	return Addr(uint32(segment)<<segmentShift | uint32(offset))
}

// Decode returns segment and offset of the address.
func (a Addr) Decode() (segment, offset uint16) {
	return uint16(uint32(a) >> segmentShift), uint16(uint32(a) & offsetMask)
}

// Segment returns the segment id.
func (a Addr) Segment() uint16 {
	return uint16(uint32(a) >> segmentShift)
}

// Offset returns the slot offset within the segment.
func (a Addr) Offset() uint16 {
	return uint16(uint32(a) & offsetMask)
}

// IsEmpty reports whether a is the empty sentinel.
func (a Addr) IsEmpty() bool {
	return a.Segment() == 0
}

// Hash returns the packed representation, stable across processes.
func (a Addr) Hash() uint32 {
	return uint32(a)
}

func (a Addr) String() string {
	if a.IsEmpty() {
		return "empty"
	}
	seg, off := a.Decode()
	return fmt.Sprintf("%d:%d", seg, off)
}
