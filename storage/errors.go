package storage

import (
	"github.com/pkg/errors"
	"github.com/viant/scgraph/sctype"
)

var (
	// ErrInvalidAddress is returned for empty, out of range or free addresses.
	ErrInvalidAddress = errors.New("storage: invalid address")
	// ErrWrongElementKind is returned when an operation does not apply to the element variant.
	ErrWrongElementKind = errors.New("storage: wrong element kind")
	// ErrAlreadyErased is returned when erasing an element that is not alive.
	ErrAlreadyErased = errors.New("storage: already erased")
	// ErrOutOfCapacity is returned when every segment is full and the segment cap is reached.
	ErrOutOfCapacity = errors.New("storage: out of capacity")
	// ErrUnsupportedPattern is returned for iterator shapes without a scan strategy.
	ErrUnsupportedPattern = errors.New("storage: unsupported pattern")
	// ErrInvalidType aliases the type tag validation error.
	ErrInvalidType = sctype.ErrInvalidType
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: closed")
	// ErrCorrupt is returned for damaged dumps and broken incidence lists.
	ErrCorrupt = errors.New("storage: corrupt")
	// ErrContentBackendIO matches any failure reported by the content store.
	ErrContentBackendIO = errors.New("storage: content backend failure")
)

// backendError keeps the content store error reachable through errors.Is
// while also matching ErrContentBackendIO.
type backendError struct {
	cause error
}

func (e *backendError) Error() string {
	return ErrContentBackendIO.Error() + ": " + e.cause.Error()
}

func (e *backendError) Unwrap() error { return e.cause }

func (e *backendError) Is(target error) bool { return target == ErrContentBackendIO }

func backendErr(err error) error {
	if err == nil {
		return nil
	}
	return &backendError{cause: err}
}
