// Copyright © 2024 The ELPS authors

package analysis

import (
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/parser/ast"
)

// SymbolKind classifies what a name in a fragment refers to.
type SymbolKind int

const (
	SymLocal         SymbolKind = iota // declared by the fragment, or an inline function parameter
	SymCaptured                        // local variable of the enclosing program
	SymImplicit                        // runtime-only binding looked up in the frame
	SymLabel                           // object marked by the user, <name>_DebugLabel
	SymThis                            // the receiver
	SymProperty                        // property of the receiver
	SymField                           // backing field inside a property accessor
	SymCoroutine                       // the continuation of the enclosing coroutine
	SymLocalFunction                   // function declared in the enclosing function
)

func (k SymbolKind) String() string {
	switch k {
	case SymLocal:
		return "local"
	case SymCaptured:
		return "captured"
	case SymImplicit:
		return "implicit"
	case SymLabel:
		return "label"
	case SymThis:
		return "this"
	case SymProperty:
		return "property"
	case SymField:
		return "field"
	case SymCoroutine:
		return "coroutine"
	case SymLocalFunction:
		return "local-function"
	default:
		return "unknown"
	}
}

// Captured reports whether symbols of kind k live outside the fragment and
// must be supplied when the compiled fragment runs.
func (k SymbolKind) Captured() bool {
	return k != SymLocal
}

// Symbol is a resolved name.  All references to the same entity share one
// Symbol.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Type    string
	Mutable bool
	// Depth is the number of lexical scopes between the declaration of a
	// captured local and the breakpoint.
	Depth int
	// Assigned is set when the fragment assigns to the symbol.
	Assigned bool
	// Owner is the declaring class of a property or backing field.
	Owner string
	// Backing names the property whose backing field a SymField denotes.
	Backing string
	// Decl is the declaration of a fragment local.
	Decl *ast.DeclStmt
	// LocalFunction describes a SymLocalFunction.
	LocalFunction *fragment.LocalFunction
	Scope         *Scope
	References    int
}
