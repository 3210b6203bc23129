package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a source that does not know the block.
	ErrNotFound = errors.New("block not found")

	// ErrSourceExhausted is returned by a source that will never produce
	// another header.
	ErrSourceExhausted = errors.New("block source exhausted")

	// ErrMalformedHeader marks a header that is structurally invalid or
	// inconsistent with the request that fetched it.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrNotContiguous is returned when appending a header that does not
	// extend the window's last entry.
	ErrNotContiguous = errors.New("header does not extend window")
)

// TransportError wraps a failure talking to the block source. Transport
// errors are retried.
type TransportError struct {
	Op  string
	Err error
}

// NewTransportError wraps err as a transport failure of op.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
