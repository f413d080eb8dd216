// Copyright © 2024 The ELPS authors

package parser

import (
	"testing"

	"github.com/luthersystems/fragmenteval/parser/ast"
	"github.com/luthersystems/fragmenteval/parser/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpression(t *testing.T) {
	x, err := ParseExpr("1 + 2 * x")
	require.NoError(t, err)
	bin, ok := x.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.PLUS, bin.Op)
	assert.IsType(t, &ast.IntLit{}, bin.X)
	mul, ok := bin.Y.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, token.STAR, mul.Op)
	assert.Equal(t, 0, x.Pos())
	assert.Equal(t, 9, x.End())
}

func TestParsePrecedence(t *testing.T) {
	x, err := ParseExpr("a || b && c == d")
	require.NoError(t, err)
	or := x.(*ast.BinaryExpr)
	assert.Equal(t, token.OR, or.Op)
	and := or.Y.(*ast.BinaryExpr)
	assert.Equal(t, token.AND, and.Op)
	assert.Equal(t, token.EQ, and.Y.(*ast.BinaryExpr).Op)

	x, err = ParseExpr("10 - 4 - 3")
	require.NoError(t, err)
	outer := x.(*ast.BinaryExpr)
	assert.IsType(t, &ast.BinaryExpr{}, outer.X, "subtraction is left associative")
}

func TestParseCalls(t *testing.T) {
	x, err := ParseExpr(`foo.bar(1, "x").length`)
	require.NoError(t, err)
	sel, ok := x.(*ast.SelectorExpr)
	require.True(t, ok)
	assert.Equal(t, "length", sel.Name.Name)
	call, ok := sel.X.(*ast.CallExpr)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	assert.Equal(t, "x", call.Args[1].(*ast.StringLit).Value)
	fun := call.Fun.(*ast.SelectorExpr)
	assert.Equal(t, "bar", fun.Name.Name)
	assert.Equal(t, "foo", fun.X.(*ast.Ident).Name)
	assert.Equal(t, 14, call.Rparen)
}

func TestParseIf(t *testing.T) {
	x, err := ParseExpr("if (a > 1) \"big\"\nelse \"small\"")
	require.NoError(t, err)
	ifx, ok := x.(*ast.IfExpr)
	require.True(t, ok)
	assert.IsType(t, &ast.BinaryExpr{}, ifx.Cond)
	assert.Equal(t, "small", ifx.Else.(*ast.StringLit).Value)

	f := Parse("test", "if (a) 1")
	assert.True(t, f.HasErrors())
}

func TestParseStatements(t *testing.T) {
	src := "val x: Int = 1\nvar y = x; y += 2\nthis.count = y\nthrow IllegalStateException(\"boom\")\ny"
	f := Parse("test", src)
	require.False(t, f.HasErrors(), "%v", f.Errors)
	require.Len(t, f.Stmts, 6)

	decl := f.Stmts[0].(*ast.DeclStmt)
	assert.False(t, decl.Mutable)
	assert.Equal(t, "x", decl.Name.Name)
	assert.Equal(t, "Int", decl.Type)
	assert.Equal(t, "val x: Int = 1", f.TextOf(decl))

	assert.True(t, f.Stmts[1].(*ast.DeclStmt).Mutable)
	assign := f.Stmts[2].(*ast.AssignStmt)
	assert.Equal(t, token.PLUS_ASSIGN, assign.Op)
	member := f.Stmts[3].(*ast.AssignStmt)
	assert.IsType(t, &ast.SelectorExpr{}, member.Target)
	assert.IsType(t, &ast.ThrowStmt{}, f.Stmts[4])
	last := f.Last().(*ast.ExprStmt)
	assert.Equal(t, "y", f.TextOf(last))
}

func TestParseStringEscapes(t *testing.T) {
	x, err := ParseExpr(`"a\tb\n\"c\" \$x $"`)
	require.NoError(t, err)
	assert.Equal(t, "a\tb\n\"c\" $x $", x.(*ast.StringLit).Value)

	_, err = ParseExpr(`"hello $name"`)
	assert.Error(t, err)
	_, err = ParseExpr(`"\q"`)
	assert.Error(t, err)
}

func TestParseMemberChainAcrossLines(t *testing.T) {
	f := Parse("test", "list\n  .size()")
	require.False(t, f.HasErrors())
	require.Len(t, f.Stmts, 1)
	call := f.Stmts[0].(*ast.ExprStmt).X.(*ast.CallExpr)
	assert.Equal(t, "size", call.Fun.(*ast.SelectorExpr).Name.Name)
}

func TestParseErrorElements(t *testing.T) {
	tests := []string{
		"1 +",
		"val = 3",
		"foo(1, 2",
		"a b",
		"1 = 2",
		"x.",
		"99999999999999999999",
		"a # b",
	}
	for _, src := range tests {
		f := Parse("test", src)
		assert.True(t, f.HasErrors(), "source %q", src)
		var bad bool
		for _, stmt := range f.Stmts {
			ast.Inspect(stmt, func(n ast.Node) bool {
				switch n.(type) {
				case *ast.BadExpr, *ast.BadStmt:
					bad = true
				}
				return true
			})
		}
		if src != "1 = 2" {
			assert.True(t, bad, "source %q has no error element", src)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	f := Parse("test", "  \n; // nothing\n")
	assert.False(t, f.HasErrors())
	assert.Empty(t, f.Stmts)
	assert.Nil(t, f.Last())
}
