// Package errors provides sentinel errors that can wrap a cause
// without losing their identity.
//
// A sentinel is declared once with New and returned wrapped around the
// lower-level failure:
//
//	var ErrNotFound = errors.New("not found")
//
//	return ErrNotFound.Wrap(err)
//
// errors.Is(returned, ErrNotFound) holds, and errors.Is(returned, err) too.
package errors

import (
	stderr "errors"
)

var _ error = New("")

// New sentinel error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error is a sentinel error, possibly wrapping a cause.
//
// Unlike the version of Wrap found in github.com/pkg/errors, wrapping never
// mutates the sentinel: a new value pointing back at its sentinel is returned.
type Error struct {
	msg      string
	err      error
	sentinel *Error
}

// Error message, followed by the cause when wrapped
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a cause into a copy of this sentinel
func (e *Error) Wrap(err error) *Error {
	root := e
	if e.sentinel != nil {
		root = e.sentinel
	}
	return &Error{msg: e.msg, err: err, sentinel: root}
}

// Is this error the target sentinel?
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e == t {
		return true
	}
	return e.sentinel != nil && (e.sentinel == t || e.sentinel == t.sentinel)
}

// As finds the first error in err's chain that matches target
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
