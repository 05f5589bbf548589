package content

import "github.com/pkg/errors"

var (
	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("content: store closed")

	// ErrNotFound indicates no payload is stored under the checksum.
	ErrNotFound = errors.New("content: payload not found")

	// ErrChecksumMismatch indicates the written bytes do not hash to the given checksum.
	ErrChecksumMismatch = errors.New("content: checksum does not match payload")

	// ErrChecksumCollision indicates two different payloads share a checksum.
	// It must be unreachable with a cryptographic hash and is treated as fatal.
	ErrChecksumCollision = errors.New("content: checksum collision")

	// ErrCorrupt indicates on-disk data corruption was detected.
	ErrCorrupt = errors.New("content: data corruption detected")
)
