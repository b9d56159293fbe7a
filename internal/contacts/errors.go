package contacts

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrder means source rows were not sorted by raw record id.
	ErrOutOfOrder = errors.New("contacts: rows out of order")
	// ErrStoreUnavailable wraps failures of the backing record store.
	ErrStoreUnavailable = errors.New("contacts: store unavailable")
)

// ErrorCode classifies package errors.
type ErrorCode string

const (
	ErrorCodeOutOfOrder       ErrorCode = "out_of_order"
	ErrorCodeStoreUnavailable ErrorCode = "store_unavailable"
)

// Error is a typed package error.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "contacts: <nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("contacts: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("contacts: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrOutOfOrder:
		return e.Code == ErrorCodeOutOfOrder
	case ErrStoreUnavailable:
		return e.Code == ErrorCodeStoreUnavailable
	}
	return false
}

func storeError(op string, err error) error {
	return &Error{Code: ErrorCodeStoreUnavailable, Op: op, Err: err}
}
