// Package apperr: typed error kinds shared by the repository, resolver and
// coordinator layers; the HTTP layer maps kinds to status codes.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Configuration
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Configuration:
		return "configuration"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is; an *Error matches the sentinel of its kind.
var (
	ErrValidation    = &Error{Kind: Validation, Msg: "validation failed"}
	ErrNotFound      = &Error{Kind: NotFound, Msg: "not found"}
	ErrConflict      = &Error{Kind: Conflict, Msg: "conflict"}
	ErrConfiguration = &Error{Kind: Configuration, Msg: "configuration error"}
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == e.Msg || isSentinel(t))
}

func isSentinel(e *Error) bool {
	return e == ErrValidation || e == ErrNotFound || e == ErrConflict || e == ErrConfiguration
}

func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns Internal for errors that carry no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
