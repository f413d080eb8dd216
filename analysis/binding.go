// Copyright © 2024 The ELPS authors

package analysis

import (
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/parser/ast"
	"github.com/luthersystems/fragmenteval/target"
)

// CallKind classifies resolved calls.
type CallKind int

const (
	CallStatic        CallKind = iota // top-level function or Class.method
	CallInline                        // inline function compiled into the fragment
	CallLocalFunction                 // function object held in a frame local
	CallConstructor                   // class instantiation
	CallVirtual                       // method of a receiver
)

// Call is a resolved call expression.
type Call struct {
	Kind   CallKind
	Owner  string
	Name   string
	Params []string
	Result string
	// Suspend is set for calls of suspend functions.  Threaded is set when
	// the call already passes the coroutine continuation.
	Suspend  bool
	Threaded bool
	Inline   *Inline
	// Function is the symbol holding the function object of a
	// CallLocalFunction.
	Function *Symbol
}

// Access is a resolved member access that is not a call.
type Access struct {
	Owner string
	Name  string
	Type  string
	// Getter is set when the member is read by calling a method rather than
	// by reading a field.
	Getter bool
}

// Inline is an inline function referenced by analyzed code.
type Inline struct {
	Func    *fragment.Function
	Unit    string
	File    *ast.File
	Params  []*Symbol
	Binding *BindingContext
}

// BindingContext records the result of resolving a fragment.
type BindingContext struct {
	File      *ast.File
	Types     map[ast.Expr]string
	Symbols   map[*ast.Ident]*Symbol
	Decls     map[*ast.DeclStmt]*Symbol
	Calls     map[*ast.CallExpr]*Call
	Selectors map[*ast.SelectorExpr]*Access
	// SuspendCalls lists calls of suspend functions in source order.
	SuspendCalls []*ast.CallExpr
	// Inlines lists inline functions referenced directly or transitively.
	// It is shared by the binding contexts of inline bodies.
	Inlines []*Inline
	// ResultType is the static type of the fragment value.
	ResultType string
	// Captured lists the symbols defined outside the fragment in order of
	// first reference.
	Captured []*Symbol
}

func newBindingContext(f *ast.File) *BindingContext {
	return &BindingContext{
		File:       f,
		Types:      make(map[ast.Expr]string),
		Symbols:    make(map[*ast.Ident]*Symbol),
		Decls:      make(map[*ast.DeclStmt]*Symbol),
		Calls:      make(map[*ast.CallExpr]*Call),
		Selectors:  make(map[*ast.SelectorExpr]*Access),
		ResultType: target.TypeUnit,
	}
}

// TypeOf returns the static type of x, Any when unknown.
func (bc *BindingContext) TypeOf(x ast.Expr) string {
	if t, ok := bc.Types[x]; ok {
		return t
	}
	return target.TypeAny
}

// Threaded reports whether every suspend call passes the continuation.
func (bc *BindingContext) Threaded() bool {
	for _, call := range bc.SuspendCalls {
		if !bc.Calls[call].Threaded {
			return false
		}
	}
	return true
}
