// Copyright © 2018 The ELPS authors

package lexer

import (
	"testing"

	"github.com/luthersystems/fragmenteval/parser/token"
	"github.com/stretchr/testify/assert"
)

type tokenCase struct {
	typ  token.Type
	text string
}

func TestLexer(t *testing.T) {
	tests := []struct {
		input  string
		tokens []tokenCase
	}{
		{``, []tokenCase{
			{token.EOF, ""},
		}},
		{`abc`, []tokenCase{
			{token.IDENT, "abc"},
			{token.EOF, ""},
		}},
		{`val x = 1`, []tokenCase{
			{token.VAL, "val"},
			{token.IDENT, "x"},
			{token.ASSIGN, "="},
			{token.INT, "1"},
			{token.EOF, ""},
		}},
		{`a+=b-c<=d&&!e`, []tokenCase{
			{token.IDENT, "a"},
			{token.PLUS_ASSIGN, "+="},
			{token.IDENT, "b"},
			{token.MINUS, "-"},
			{token.IDENT, "c"},
			{token.LE, "<="},
			{token.IDENT, "d"},
			{token.AND, "&&"},
			{token.NOT, "!"},
			{token.IDENT, "e"},
			{token.EOF, ""},
		}},
		{`10 0.5 12e3 1.toString()`, []tokenCase{
			{token.INT, "10"},
			{token.FLOAT, "0.5"},
			{token.FLOAT, "12e3"},
			{token.INT, "1"},
			{token.DOT, "."},
			{token.IDENT, "toString"},
			{token.PAREN_L, "("},
			{token.PAREN_R, ")"},
			{token.EOF, ""},
		}},
		{`"a\"b" // trailing`, []tokenCase{
			{token.STRING, `"a\"b"`},
			{token.EOF, ""},
		}},
		{"a\nb;c", []tokenCase{
			{token.IDENT, "a"},
			{token.NEWLINE, "\n"},
			{token.IDENT, "b"},
			{token.SEMICOLON, ";"},
			{token.IDENT, "c"},
			{token.EOF, ""},
		}},
		{"f(a,\n b)\n", []tokenCase{
			{token.IDENT, "f"},
			{token.PAREN_L, "("},
			{token.IDENT, "a"},
			{token.COMMA, ","},
			{token.IDENT, "b"},
			{token.PAREN_R, ")"},
			{token.NEWLINE, "\n"},
			{token.EOF, ""},
		}},
		{`this.field`, []tokenCase{
			{token.THIS, "this"},
			{token.DOT, "."},
			{token.IDENT, "field"},
			{token.EOF, ""},
		}},
	}
	for i, test := range tests {
		toks := New(token.NewScanner("test", test.input)).Tokens()
		var got []tokenCase
		for _, tok := range toks {
			got = append(got, tokenCase{tok.Type, tok.Text})
		}
		assert.Equal(t, test.tokens, got, "test %d: %q", i, test.input)
	}
}

func TestLexerErrors(t *testing.T) {
	for _, input := range []string{
		`"abc`,
		`12abc`,
		`a # b`,
		`a | b`,
		`1e+`,
	} {
		toks := New(token.NewScanner("test", input)).Tokens()
		var errs int
		for _, tok := range toks {
			if tok.Type == token.ERROR {
				errs++
			}
		}
		assert.Equal(t, 1, errs, "input %q", input)
		assert.Equal(t, token.EOF, toks[len(toks)-1].Type)
	}
}

func TestLexerLocation(t *testing.T) {
	toks := New(token.NewScanner("test", "a\n  bb")).Tokens()
	assert.Len(t, toks, 4)
	assert.Equal(t, 4, toks[2].Source.Pos)
	assert.Equal(t, 2, toks[2].Source.Line)
	assert.Equal(t, 3, toks[2].Source.Col)
	assert.Equal(t, 6, toks[2].End())
}
