// Package content defines the content-addressed payload backend consumed by
// the graph engine for sc-link contents.
//
// Payloads are keyed by their checksum and reference counted by the links
// that point at them: a payload is retained until the last referencing link
// drops its reference.
package content

import (
	"bytes"
	"context"
	"io"

	"github.com/viant/scgraph/addr"
)

// Store is a content-addressable, reference-counted payload backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Write stores the payload under checksum. Writing an existing checksum
	// with identical bytes is a no-op; differing bytes yield ErrChecksumCollision.
	// A failed write leaves the store unchanged.
	Write(ctx context.Context, checksum Checksum, r io.Reader) error

	// Read opens the payload stored under checksum.
	Read(ctx context.Context, checksum Checksum) (io.ReadCloser, error)

	// AddReference records that the link at a references checksum.
	AddReference(ctx context.Context, a addr.Addr, checksum Checksum) error

	// RemoveReference drops the reference; the payload is discarded once no
	// reference remains.
	RemoveReference(ctx context.Context, a addr.Addr, checksum Checksum) error

	// FindByChecksum lists the links referencing checksum.
	FindByChecksum(ctx context.Context, checksum Checksum) ([]addr.Addr, error)

	// Close releases resources. After Close the store returns ErrClosed.
	Close() error
}

// Stats exposes basic payload counters.
type Stats struct {
	Payloads   int    `json:"payloads"`
	References int    `json:"references"`
	Bytes      uint64 `json:"bytes"`
}

// StatsProvider is implemented by stores able to report Stats cheaply.
type StatsProvider interface {
	Stats() Stats
}

// ReadAll is a convenience reading the whole payload under checksum.
func ReadAll(ctx context.Context, store Store, checksum Checksum) ([]byte, error) {
	r, err := store.Read(ctx, checksum)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// VerifiedPayload drains r and checks it against checksum.
func VerifiedPayload(checksum Checksum, r io.Reader) ([]byte, error) {
	sum, data, err := SumReader(r)
	if err != nil {
		return nil, err
	}
	if sum != checksum {
		return nil, ErrChecksumMismatch
	}
	return data, nil
}

// SamePayload returns ErrChecksumCollision when existing differs from data.
func SamePayload(existing, data []byte) error {
	if !bytes.Equal(existing, data) {
		return ErrChecksumCollision
	}
	return nil
}

// ReadCloser wraps a payload copy as an io.ReadCloser.
func ReadCloser(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
