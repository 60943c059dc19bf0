package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how callers should react to them.
type ErrorKind int

const (
	KindUnknown         ErrorKind = iota
	KindConfiguration             // fatal at startup, not retryable
	KindDataSource                // token/milestone/ledger stores, retryable
	KindExternalService           // providers and notifiers, retryable
	KindValidation                // rejected input, not retryable
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindDataSource:
		return "data_source"
	case KindExternalService:
		return "external_service"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the failing operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *Error) Retryable() bool {
	return e.Kind == KindDataSource || e.Kind == KindExternalService
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is classified as retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
