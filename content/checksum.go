package content

import (
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
	"lukechampine.com/blake3"
)

// ChecksumSize is the size in bytes of a content checksum.
const ChecksumSize = 32

// Checksum identifies a payload by its BLAKE3-256 digest.
type Checksum [ChecksumSize]byte

// Sum computes the checksum of data.
func Sum(data []byte) Checksum {
	return blake3.Sum256(data)
}

// SumReader drains r and returns its checksum along with the bytes read.
func SumReader(r io.Reader) (Checksum, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Checksum{}, nil, errors.Wrap(err, "content: read payload")
	}
	return Sum(data), data, nil
}

// IsZero reports whether c is the zero checksum (no content).
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// ParseChecksum decodes a hex checksum.
func ParseChecksum(s string) (Checksum, error) {
	var ret Checksum
	b, err := hex.DecodeString(s)
	if err != nil {
		return ret, errors.Wrapf(err, "content: invalid checksum %q", s)
	}
	if len(b) != ChecksumSize {
		return ret, errors.Errorf("content: invalid checksum length %d", len(b))
	}
	copy(ret[:], b)
	return ret, nil
}
