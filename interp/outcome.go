// Copyright © 2018 The ELPS authors

package interp

import (
	"fmt"

	"github.com/luthersystems/fragmenteval/target"
)

// Outcome is the result of running a method.  An Outcome is one of Value,
// Thrown, or Abnormal.
type Outcome interface {
	outcome()
}

// Value is a normal completion.
type Value struct {
	Value target.Value
}

// ThrowKind tells where a thrown exception came from.
type ThrowKind int

const (
	// FromEvaluatedCode is an exception thrown by the evaluated code or by
	// the debuggee methods it called.
	FromEvaluatedCode ThrowKind = iota
	// BrokenCode is a failure of the machine itself, such as a stack
	// underflow.  It indicates a defect in the compiler or machine.
	BrokenCode
)

func (k ThrowKind) String() string {
	if k == BrokenCode {
		return "broken code"
	}
	return "evaluated code"
}

// Thrown is an abrupt completion with an exception.  When Kind is BrokenCode
// Exception is nil and Err is an *InternalError.
type Thrown struct {
	Exception target.Value
	Kind      ThrowKind
	Err       error
}

// Abnormal is a termination which is neither a value nor an exception, for
// example when the debuggee could not perform an invocation.
type Abnormal struct {
	Reason string
}

func (Value) outcome()    {}
func (Thrown) outcome()   {}
func (Abnormal) outcome() {}

// InternalError is a defect detected while interpreting code.
type InternalError struct {
	Method string
	PC     int
	Msg    string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in %s at %d: %s", e.Method, e.PC, e.Msg)
}
