// Copyright © 2018 The ELPS authors

package lexer

import (
	"fmt"
	"unicode"

	"github.com/luthersystems/fragmenteval/parser/token"
)

type LexFn func(*Lexer) *token.Token

const operatorRunes = "+-*/%=!<>&|.,:;()"

// Lexer splits fragment text into tokens.  Newlines are emitted as
// token.NEWLINE except while inside parentheses, where they are insignificant.
type Lexer struct {
	scanner *token.Scanner
	lex     LexFn
	depth   int
}

func New(s *token.Scanner) *Lexer {
	lex := &Lexer{
		scanner: s,
		lex:     (*Lexer).readToken,
	}
	return lex
}

// ReadToken returns the next token.  At the end of input ReadToken returns a
// token with type token.EOF on every call.
func (lex *Lexer) ReadToken() *token.Token {
	return lex.lex(lex)
}

// Tokens reads all tokens through EOF.
func (lex *Lexer) Tokens() []*token.Token {
	var toks []*token.Token
	for {
		tok := lex.ReadToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (lex *Lexer) readToken() *token.Token {
	lex.skipWhitespace()
	if !lex.scanner.ScanRune() {
		return lex.emit(token.EOF, "")
	}
	c := lex.scanner.Rune()
	switch {
	case c == '\n':
		return lex.scanner.EmitToken(token.NEWLINE)
	case c == '/' && lex.peekRune() == '/':
		lex.scanner.AcceptSeq(func(c rune) bool { return c != '\n' })
		lex.scanner.Ignore()
		return lex.readToken()
	case c == '"':
		return lex.readString()
	case isDigit(c):
		return lex.readNumber()
	case isWordStart(c):
		return lex.readWord()
	case containsRune(operatorRunes, c):
		return lex.readOperator()
	default:
		return lex.errorf("unexpected character %q", c)
	}
}

func (lex *Lexer) readOperator() *token.Token {
	first := lex.scanner.Rune()
	if next, ok := lex.scanner.Peek(); ok {
		if typ, ok := token.Operators[string([]rune{first, next})]; ok {
			lex.scanner.ScanRune()
			return lex.scanner.EmitToken(typ)
		}
	}
	typ, ok := token.Operators[string(first)]
	if !ok {
		return lex.errorf("invalid operator %q", first)
	}
	switch typ {
	case token.PAREN_L:
		lex.depth++
	case token.PAREN_R:
		if lex.depth > 0 {
			lex.depth--
		}
	}
	return lex.scanner.EmitToken(typ)
}

func (lex *Lexer) readString() *token.Token {
	for {
		if !lex.scanner.ScanRune() {
			return lex.errorf("unterminated string literal")
		}
		switch lex.scanner.Rune() {
		case '"':
			return lex.scanner.EmitToken(token.STRING)
		case '\n':
			return lex.errorf("unterminated string literal")
		case '\\':
			// Escapes are validated by the parser.
			if !lex.scanner.ScanRune() {
				return lex.errorf("unterminated string literal")
			}
		}
	}
}

func (lex *Lexer) readWord() *token.Token {
	lex.scanner.AcceptSeq(isWord)
	if typ, ok := token.Keywords[lex.scanner.Text()]; ok {
		return lex.scanner.EmitToken(typ)
	}
	return lex.scanner.EmitToken(token.IDENT)
}

func (lex *Lexer) readNumber() *token.Token {
	lex.scanner.AcceptSeqDigit() // the first digit already scanned
	// A dot only starts a fraction when a digit follows; `1.toString()` is a
	// member call on an integer literal.
	if next, ok := lex.scanner.PeekN(1); ok && lex.peekRune() == '.' && isDigit(next) {
		lex.scanner.AcceptRune('.')
		lex.scanner.AcceptSeqDigit()
		if !lex.readExponent() {
			return lex.errorf("invalid floating point literal starting: %v", lex.scanner.Text())
		}
		return lex.scanner.EmitToken(token.FLOAT)
	}
	if lex.peekRune() == 'e' || lex.peekRune() == 'E' {
		if !lex.readExponent() {
			return lex.errorf("invalid floating point literal starting: %v", lex.scanner.Text())
		}
		return lex.scanner.EmitToken(token.FLOAT)
	}
	if isWordStart(lex.peekRune()) {
		return lex.errorf("invalid numeric literal starting: %v%c", lex.scanner.Text(), lex.peekRune())
	}
	// the returned string may not actually be a usable number (overflow), but
	// we can find that out at parse time -- not scan time.
	return lex.scanner.EmitToken(token.INT)
}

func (lex *Lexer) readExponent() bool {
	if !lex.scanner.AcceptAny("eE") {
		return true
	}
	lex.scanner.AcceptAny("+-") // optional sign
	return lex.scanner.AcceptSeqDigit() > 0
}

func (lex *Lexer) skipWhitespace() {
	for {
		n := lex.scanner.AcceptSeqSpace()
		if lex.depth > 0 && lex.scanner.AcceptRune('\n') {
			n++
		}
		if n == 0 {
			break
		}
	}
	lex.scanner.Ignore()
}

func (lex *Lexer) emit(typ token.Type, text string) *token.Token {
	tok := &token.Token{
		Type:   typ,
		Text:   text,
		Source: lex.scanner.LocStart(),
	}
	lex.scanner.Ignore()
	return tok
}

func (lex *Lexer) errorf(format string, v ...interface{}) *token.Token {
	// Consume the rest of the line so a single bad character does not produce
	// a cascade of errors.
	lex.scanner.AcceptSeq(func(c rune) bool { return c != '\n' })
	tok := lex.scanner.EmitToken(token.ERROR)
	tok.Text = fmt.Sprintf(format, v...)
	return tok
}

func (lex *Lexer) peekRune() rune {
	r, _ := lex.scanner.Peek()
	return r
}

func isWordStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_' || c == '$'
}

func isWord(c rune) bool {
	return isWordStart(c) || unicode.IsDigit(c)
}

func isDigit(c rune) bool {
	return '0' <= c && c <= '9'
}

func containsRune(s string, c rune) bool {
	for _, r := range s {
		if r == c {
			return true
		}
	}
	return false
}
