// Copyright © 2018 The ELPS authors

package token

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Scanner facilitates construction of tokens from fragment source text.
// Fragments are small so the whole text is held in memory.
type Scanner struct {
	file string
	src  string

	start     int // byte offset of the current token
	startLine int
	startCol  int

	pos  int // byte offset of the next rune to scan
	line int
	col  int // column of the next rune to scan
	c    rune
}

// NewScanner initializes and returns a new Scanner over src.
func NewScanner(file string, src string) *Scanner {
	return &Scanner{
		file:      file,
		src:       src,
		line:      1,
		col:       1,
		startLine: 1,
		startCol:  1,
	}
}

// EmitToken returns a token containing the text scanned since the last call to
// either EmitToken or Ignore.
func (s *Scanner) EmitToken(typ Type) *Token {
	tok := &Token{
		Type:   typ,
		Text:   s.Text(),
		Source: s.LocStart(),
	}
	s.Ignore()
	return tok
}

// Ignore causes the scanner to skip all text scanned since the last call to
// either EmitToken or Ignore.
func (s *Scanner) Ignore() {
	s.start = s.pos
	s.startLine = s.line
	s.startCol = s.col
}

// Text returns a string containing text scanned since the last call to either
// EmitToken or Ignore.
func (s *Scanner) Text() string {
	return s.src[s.start:s.pos]
}

// Rune returns the last rune that was scanned.
func (s *Scanner) Rune() rune {
	return s.c
}

// Peek returns the next rune to be scanned.  Peek returns false at the end of
// input.
func (s *Scanner) Peek() (rune, bool) {
	if s.pos >= len(s.src) {
		return 0, false
	}
	c, _ := utf8.DecodeRuneInString(s.src[s.pos:])
	return c, true
}

// PeekN returns the rune n positions past the next rune to be scanned.
func (s *Scanner) PeekN(n int) (rune, bool) {
	pos := s.pos
	for i := 0; ; i++ {
		if pos >= len(s.src) {
			return 0, false
		}
		c, size := utf8.DecodeRuneInString(s.src[pos:])
		if i == n {
			return c, true
		}
		pos += size
	}
}

// ScanRune includes the next rune in the current token.  ScanRune returns
// false at the end of input.
func (s *Scanner) ScanRune() bool {
	if s.pos >= len(s.src) {
		return false
	}
	c, size := utf8.DecodeRuneInString(s.src[s.pos:])
	s.c = c
	s.pos += size
	if c == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return true
}

// EOF reports whether all input has been scanned.
func (s *Scanner) EOF() bool {
	return s.pos >= len(s.src)
}

func (s *Scanner) Accept(fn func(rune) bool) bool {
	peek, ok := s.Peek()
	if !ok || !fn(peek) {
		return false
	}
	return s.ScanRune()
}

func (s *Scanner) AcceptRune(c rune) bool {
	return s.Accept(func(r rune) bool { return r == c })
}

func (s *Scanner) AcceptDigit() bool {
	return s.Accept(func(r rune) bool { return '0' <= r && r <= '9' })
}

func (s *Scanner) AcceptAny(charset string) bool {
	return s.Accept(func(r rune) bool { return strings.ContainsRune(charset, r) })
}

func (s *Scanner) AcceptSeq(fn func(rune) bool) int {
	var n int
	for s.Accept(fn) {
		n++
	}
	return n
}

func (s *Scanner) AcceptSeqDigit() int {
	var n int
	for s.AcceptDigit() {
		n++
	}
	return n
}

// AcceptSeqSpace skips horizontal whitespace.  Newlines are significant and
// are not accepted.
func (s *Scanner) AcceptSeqSpace() int {
	return s.AcceptSeq(func(r rune) bool { return r != '\n' && unicode.IsSpace(r) })
}

// LocStart returns a Location referencing the beginning of the current token.
func (s *Scanner) LocStart() *Location {
	return &Location{
		File: s.file,
		Pos:  s.start,
		Line: s.startLine,
		Col:  s.startCol,
	}
}

// Loc returns a Location referencing the current scanner position.
func (s *Scanner) Loc() *Location {
	return &Location{
		File: s.file,
		Pos:  s.pos,
		Line: s.line,
		Col:  s.col,
	}
}
