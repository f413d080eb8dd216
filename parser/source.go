// Copyright © 2018 The ELPS authors

package parser

import (
	"github.com/luthersystems/fragmenteval/parser/lexer"
	"github.com/luthersystems/fragmenteval/parser/token"
)

// TokenSource implements token.Source over a lexer.  TokenSource allows
// arbitrary lookahead, which the parser needs to look past newlines.
type TokenSource struct {
	lex   *lexer.Lexer
	tok   *token.Token
	ahead []*token.Token
	eof   bool
}

var _ token.Source = (*TokenSource)(nil)

// NewTokenSource returns a TokenSource reading from lex.
func NewTokenSource(lex *lexer.Lexer) *TokenSource {
	return &TokenSource{lex: lex}
}

// Token implements token.Source.
func (s *TokenSource) Token() *token.Token {
	return s.tok
}

// Peek implements token.Source.
func (s *TokenSource) Peek() *token.Token {
	return s.PeekN(0)
}

// PeekN returns the token n positions past the next token.
func (s *TokenSource) PeekN(n int) *token.Token {
	for len(s.ahead) <= n {
		tok := s.lex.ReadToken()
		s.ahead = append(s.ahead, tok)
		if tok.Type == token.EOF {
			// The lexer keeps returning EOF so the buffer can be padded.
			for len(s.ahead) <= n {
				s.ahead = append(s.ahead, tok)
			}
		}
	}
	return s.ahead[n]
}

// Scan implements token.Source.
func (s *TokenSource) Scan() bool {
	if s.eof {
		return false
	}
	s.tok = s.Peek()
	s.ahead = s.ahead[1:]
	if s.tok.Type == token.EOF {
		s.eof = true
	}
	return true
}
