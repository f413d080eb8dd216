// Copyright © 2018 The ELPS authors

// Package status classifies and records the outcome of an evaluation.
package status

// Kind classifies the outcome of an evaluation attempt.
type Kind int

// Kinds of evaluation outcomes.
const (
	Success Kind = iota

	// The debuggee environment is not ready.
	DebuggerNotAttached
	NoFrameProxy
	ThreadNotAvailable
	ThreadNotSuspended
	DumbMode

	// Analysis failures.
	ErrorElementOccurred
	FrontendException
	ErrorsInCode
	IllegalSuspendFunCall

	// Argument binding failures.
	CoroutineContextUnavailable
	ParameterNotCaptured
	BackingFieldNotFound
	InsideDefaultMethod
	OptimisedVariable
	CannotFindVariable

	// Backend failures.
	BackendException
	CompilingEvaluatorFailed
	InterpretingException
	Eval4JAbnormalTermination
	Eval4JUnknownException
	ClassNotFound

	// The evaluated code threw.
	ExceptionFromEvaluatedCode

	GenericException

	numKinds
)

var kindStrings = [numKinds]string{
	Success:                     "Success",
	DebuggerNotAttached:         "DebuggerNotAttached",
	NoFrameProxy:                "NoFrameProxy",
	ThreadNotAvailable:          "ThreadNotAvailable",
	ThreadNotSuspended:          "ThreadNotSuspended",
	DumbMode:                    "DumbMode",
	ErrorElementOccurred:        "ErrorElementOccurred",
	FrontendException:           "FrontendException",
	ErrorsInCode:                "ErrorsInCode",
	IllegalSuspendFunCall:       "IllegalSuspendFunCall",
	CoroutineContextUnavailable: "CoroutineContextUnavailable",
	ParameterNotCaptured:        "ParameterNotCaptured",
	BackingFieldNotFound:        "BackingFieldNotFound",
	InsideDefaultMethod:         "InsideDefaultMethod",
	OptimisedVariable:           "OptimisedVariable",
	CannotFindVariable:          "CannotFindVariable",
	BackendException:            "BackendException",
	CompilingEvaluatorFailed:    "CompilingEvaluatorFailed",
	InterpretingException:       "InterpretingException",
	Eval4JAbnormalTermination:   "Eval4JAbnormalTermination",
	Eval4JUnknownException:      "Eval4JUnknownException",
	ClassNotFound:               "ClassNotFound",
	ExceptionFromEvaluatedCode:  "ExceptionFromEvaluatedCode",
	GenericException:            "GenericException",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "Unknown"
	}
	return kindStrings[k]
}

// Kinds returns all kinds in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Fatal reports whether an evaluation that records k fails.  Only markers
// such as CompilingEvaluatorFailed are not fatal.
func (k Kind) Fatal() bool {
	return k != Success && k != CompilingEvaluatorFailed
}
