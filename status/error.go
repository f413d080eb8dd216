// Copyright © 2018 The ELPS authors

package status

import (
	"errors"
	"fmt"

	"github.com/luthersystems/fragmenteval/target"
)

// Error is the user-facing error of a failed evaluation.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
	// Exception is the object thrown by evaluated code.  It is only set for
	// ExceptionFromEvaluatedCode.
	Exception target.Value
}

// Errorf returns an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, v...)}
}

// Wrap returns an Error of the given kind caused by err.
func Wrap(kind Kind, err error, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, v...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind so callers can test with a template:
//
//	errors.Is(err, &status.Error{Kind: status.CannotFindVariable})
func (e *Error) Is(other error) bool {
	t, ok := other.(*Error)
	return ok && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain of err.  Errors
// of any other type are GenericException.
func KindOf(err error) Kind {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return GenericException
}
