// Copyright © 2018 The ELPS authors

// Package ast declares the syntax tree of a code fragment.  Every node
// records the byte offsets of its source text so that rewrites can splice
// the original fragment.
package ast

import (
	"github.com/luthersystems/fragmenteval/parser/token"
)

// Node is implemented by all syntax tree nodes.
type Node interface {
	// Pos is the byte offset of the first character of the node.
	Pos() int
	// End is the byte offset just past the last character of the node.
	End() int
	// Loc is the location of the first character of the node.
	Loc() *token.Location
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Span is the position information shared by all nodes.
type Span struct {
	Source *token.Location
	EndPos int
}

// NewSpan returns a Span starting at loc and ending at offset end.
func NewSpan(loc *token.Location, end int) Span {
	return Span{Source: loc, EndPos: end}
}

func (s Span) Pos() int {
	if s.Source == nil {
		return 0
	}
	return s.Source.Pos
}

func (s Span) End() int             { return s.EndPos }
func (s Span) Loc() *token.Location { return s.Source }

type (
	// Ident is a name reference.  The identifiers `this` and `field` are
	// ordinary Idents; their meaning is decided during analysis.
	Ident struct {
		Span
		Name string
	}

	// IntLit is an integer literal.
	IntLit struct {
		Span
		Value int64
	}

	// FloatLit is a floating point literal.
	FloatLit struct {
		Span
		Value float64
	}

	// StringLit is a string literal with escapes already decoded.
	StringLit struct {
		Span
		Value string
	}

	// BoolLit is `true` or `false`.
	BoolLit struct {
		Span
		Value bool
	}

	// NullLit is `null`.
	NullLit struct {
		Span
	}

	// ParenExpr is a parenthesized expression.
	ParenExpr struct {
		Span
		X Expr
	}

	// UnaryExpr is a prefix operator expression.
	UnaryExpr struct {
		Span
		Op token.Type
		X  Expr
	}

	// BinaryExpr is an infix operator expression.
	BinaryExpr struct {
		Span
		Op   token.Type
		X, Y Expr
	}

	// SelectorExpr is a member access, X.Name.
	SelectorExpr struct {
		Span
		X    Expr
		Name *Ident
	}

	// CallExpr is a call.  Fun is either an *Ident (a function, local
	// function, or constructor call) or a *SelectorExpr (a member or static
	// call).
	CallExpr struct {
		Span
		Fun    Expr
		Args   []Expr
		Rparen int // offset of the closing parenthesis
	}

	// IfExpr is `if (Cond) Then else Else`.
	IfExpr struct {
		Span
		Cond, Then, Else Expr
	}

	// BadExpr is an error element left by the parser in place of an
	// expression it could not parse.
	BadExpr struct {
		Span
		Msg string
	}
)

type (
	// DeclStmt declares a fragment-local variable.
	DeclStmt struct {
		Span
		Mutable bool
		Name    *Ident
		Type    string // declared type, may be empty
		Value   Expr
	}

	// AssignStmt assigns to an identifier or a member.  Op is token.ASSIGN
	// or one of the compound assignment operators.
	AssignStmt struct {
		Span
		Op     token.Type
		Target Expr
		Value  Expr
	}

	// ThrowStmt throws an exception object.
	ThrowStmt struct {
		Span
		X Expr
	}

	// ExprStmt evaluates an expression.
	ExprStmt struct {
		Span
		X Expr
	}

	// BadStmt is an error element left by the parser in place of a
	// statement it could not parse.
	BadStmt struct {
		Span
		Msg string
	}
)

func (*Ident) exprNode()        {}
func (*IntLit) exprNode()       {}
func (*FloatLit) exprNode()     {}
func (*StringLit) exprNode()    {}
func (*BoolLit) exprNode()      {}
func (*NullLit) exprNode()      {}
func (*ParenExpr) exprNode()    {}
func (*UnaryExpr) exprNode()    {}
func (*BinaryExpr) exprNode()   {}
func (*SelectorExpr) exprNode() {}
func (*CallExpr) exprNode()     {}
func (*IfExpr) exprNode()       {}
func (*BadExpr) exprNode()      {}

func (*DeclStmt) stmtNode()   {}
func (*AssignStmt) stmtNode() {}
func (*ThrowStmt) stmtNode()  {}
func (*ExprStmt) stmtNode()   {}
func (*BadStmt) stmtNode()    {}

// ErrorElement describes a syntax error found in a fragment.
type ErrorElement struct {
	Source *token.Location
	Msg    string
}

func (e *ErrorElement) Error() string {
	return e.Source.String() + ": " + e.Msg
}

// File is a parsed fragment.
type File struct {
	Name   string
	Text   string
	Stmts  []Stmt
	Errors []*ErrorElement
}

// HasErrors reports whether the parser left error elements in the tree.
func (f *File) HasErrors() bool {
	return len(f.Errors) > 0
}

// Last returns the final statement of the fragment or nil when it is empty.
func (f *File) Last() Stmt {
	if len(f.Stmts) == 0 {
		return nil
	}
	return f.Stmts[len(f.Stmts)-1]
}

// TextOf returns the source text of n.
func (f *File) TextOf(n Node) string {
	start, end := n.Pos(), n.End()
	if start < 0 || end > len(f.Text) || start > end {
		return ""
	}
	return f.Text[start:end]
}
