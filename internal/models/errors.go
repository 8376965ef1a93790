package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by storage and classification
type ErrorKind string

const (
	KindConnectionUnavailable     ErrorKind = "connection_unavailable"
	KindValidationRejected        ErrorKind = "validation_rejected"
	KindNotFound                  ErrorKind = "not_found"
	KindConflict                  ErrorKind = "conflict"
	KindClassificationUnavailable ErrorKind = "classification_unavailable"
)

// Sentinels for errors.Is matching on kind only
var (
	ErrConnectionUnavailable     = &Error{Kind: KindConnectionUnavailable}
	ErrValidationRejected        = &Error{Kind: KindValidationRejected}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrConflict                  = &Error{Kind: KindConflict}
	ErrClassificationUnavailable = &Error{Kind: KindClassificationUnavailable}
)

// Error is a classified failure with the operation that produced it
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation name
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare sentinel of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e == t
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
