// Copyright © 2024 The ELPS authors

package analysis

import (
	"fmt"
	"strings"

	"github.com/luthersystems/fragmenteval/parser/token"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic categories reported by the resolver.
const (
	UnresolvedReference            = "UNRESOLVED_REFERENCE"
	TypeMismatch                   = "TYPE_MISMATCH"
	ValReassignment                = "VAL_REASSIGNMENT"
	ArgumentCountMismatch          = "ARGUMENT_COUNT_MISMATCH"
	IntLiteralOutOfRange           = "INT_LITERAL_OUT_OF_RANGE"
	InvisibleReference             = "INVISIBLE_REFERENCE"
	InvisibleMember                = "INVISIBLE_MEMBER"
	OptInUsage                     = "OPT_IN_USAGE"
	MissingDependencySuperclass    = "MISSING_DEPENDENCY_SUPERCLASS"
	IRWithUnstableABICompiledClass = "IR_WITH_UNSTABLE_ABI_COMPILED_CLASS"
)

// Ignored lists the categories of diagnostics that never fail an
// evaluation.  The debugger may legitimately reach code the compiler would
// reject in ordinary source.
var Ignored = map[string]bool{
	InvisibleReference:             true,
	InvisibleMember:                true,
	OptInUsage:                     true,
	MissingDependencySuperclass:    true,
	IRWithUnstableABICompiledClass: true,
}

// Diagnostic is a problem found in analyzed code.
type Diagnostic struct {
	Category string
	Severity Severity
	// File is the file the diagnostic is attached to.  Diagnostics found in
	// inline function bodies are attached to the body's file.
	File   string
	Source *token.Location
	Msg    string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%v: %v: %s [%s]", d.Source, d.Severity, d.Msg, d.Category)
}

// CodeErrors are the error diagnostics that failed an analysis.
type CodeErrors []Diagnostic

func (errs CodeErrors) Error() string {
	lines := make([]string, len(errs))
	for i, d := range errs {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}
