package element

import (
	"github.com/pkg/errors"
	"github.com/viant/bintly"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/sctype"
)

// EncodeBinary writes the record. Every field is written so that records
// have the same length whatever their kind.
func (e *Element) EncodeBinary(stream *bintly.Writer) error {
	stream.Uint16(uint16(e.Type))
	stream.Uint8(uint8(e.Flags))
	stream.Uint64(e.CreateTS)
	stream.Uint64(e.DeleteTS)
	stream.Uint32(uint32(e.FirstOut))
	stream.Uint32(uint32(e.FirstIn))
	c := &e.Connector
	for _, a := range [...]addr.Addr{c.Begin, c.End, c.PrevOut, c.NextOut, c.PrevIn, c.NextIn} {
		stream.Uint32(uint32(a))
	}
	stream.Uint8s(e.Checksum[:])
	return nil
}

// DecodeBinary reads a record written by EncodeBinary.
func (e *Element) DecodeBinary(stream *bintly.Reader) error {
	var tag uint16
	var flags uint8
	stream.Uint16(&tag)
	stream.Uint8(&flags)
	e.Type = sctype.Type(tag)
	e.Flags = Flags(flags)
	stream.Uint64(&e.CreateTS)
	stream.Uint64(&e.DeleteTS)
	var fields [8]uint32
	for i := range fields {
		stream.Uint32(&fields[i])
	}
	e.FirstOut, e.FirstIn = addr.Addr(fields[0]), addr.Addr(fields[1])
	e.Connector = Connector{
		Begin:   addr.Addr(fields[2]),
		End:     addr.Addr(fields[3]),
		PrevOut: addr.Addr(fields[4]),
		NextOut: addr.Addr(fields[5]),
		PrevIn:  addr.Addr(fields[6]),
		NextIn:  addr.Addr(fields[7]),
	}
	var sum []uint8
	stream.Uint8s(&sum)
	if len(sum) != content.ChecksumSize {
		return errors.Errorf("element: invalid checksum length %d", len(sum))
	}
	copy(e.Checksum[:], sum)
	return nil
}
