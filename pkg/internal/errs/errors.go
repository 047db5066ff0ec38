// Package errs classifies failures so that transport layers can map them to
// responses without inspecting messages.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindConflict
	KindNotFound
	KindExternalService
	// KindRaceLost means a conditional update matched zero rows.
	KindRaceLost
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExternalService:
		return "external_service"
	case KindRaceLost:
		return "race_lost"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

func Authorization(format string, args ...any) error {
	return newError(KindAuthorization, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func RaceLost(format string, args ...any) error {
	return newError(KindRaceLost, format, args...)
}

// ExternalService wraps a failure of a remote dependency.
func ExternalService(err error, format string, args ...any) error {
	e := newError(KindExternalService, format, args...)
	e.Err = err
	return e
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	e := newError(kind, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
