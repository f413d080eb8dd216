// Copyright © 2018 The ELPS authors

package token

import "fmt"

// Source is an abstract stream of tokens which allows one token lookahead.
type Source interface {
	// Token returns the current token.  Token returns nil if Scan has not been
	// called.
	Token() *Token
	// Peek returns the next token in the stream.  At the end of the stream
	// Peek should return a value to indicate the lack of a token (EOF).
	Peek() *Token
	// Scan advances the token stream if possible.  If there are no tokens
	// remaining Scan returns false.
	Scan() bool
}

type Token struct {
	Type   Type
	Text   string
	Source *Location
}

// End returns the byte offset just past the token text.
func (tok *Token) End() int {
	if tok.Source == nil {
		return len(tok.Text)
	}
	return tok.Source.Pos + len(tok.Text)
}

func (tok *Token) String() string {
	switch tok.Type {
	case EOF:
		return "EOF"
	case NEWLINE:
		return "newline"
	}
	return fmt.Sprintf("%q", tok.Text)
}

type Type uint

// Type constants used by the fragment lexer and parser.
const (
	INVALID Type = iota
	ERROR
	EOF
	NEWLINE
	COMMENT

	// Atomic expressions & literals
	IDENT
	INT
	FLOAT
	STRING

	// Keywords
	VAL
	VAR
	IF
	ELSE
	THROW
	TRUE
	FALSE
	NULL
	THIS

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	EQ
	NE
	LT
	LE
	GT
	GE
	AND
	OR
	NOT
	ASSIGN
	PLUS_ASSIGN
	MINUS_ASSIGN
	STAR_ASSIGN
	SLASH_ASSIGN
	DOT

	// Delimiters
	COMMA
	COLON
	SEMICOLON
	PAREN_L
	PAREN_R

	numTokenTypes
)

var typeStrings = [numTokenTypes]string{
	INVALID:      "invalid",
	ERROR:        "error",
	EOF:          "EOF",
	NEWLINE:      "newline",
	COMMENT:      "//",
	IDENT:        "identifier",
	INT:          "int",
	FLOAT:        "float",
	STRING:       "string",
	VAL:          "val",
	VAR:          "var",
	IF:           "if",
	ELSE:         "else",
	THROW:        "throw",
	TRUE:         "true",
	FALSE:        "false",
	NULL:         "null",
	THIS:         "this",
	PLUS:         "+",
	MINUS:        "-",
	STAR:         "*",
	SLASH:        "/",
	PERCENT:      "%",
	EQ:           "==",
	NE:           "!=",
	LT:           "<",
	LE:           "<=",
	GT:           ">",
	GE:           ">=",
	AND:          "&&",
	OR:           "||",
	NOT:          "!",
	ASSIGN:       "=",
	PLUS_ASSIGN:  "+=",
	MINUS_ASSIGN: "-=",
	STAR_ASSIGN:  "*=",
	SLASH_ASSIGN: "/=",
	DOT:          ".",
	COMMA:        ",",
	COLON:        ":",
	SEMICOLON:    ";",
	PAREN_L:      "(",
	PAREN_R:      ")",
}

func (typ Type) String() string {
	if typ >= numTokenTypes {
		return typeStrings[INVALID]
	}
	return typeStrings[typ]
}

// Keywords maps reserved words to their token types.
var Keywords = map[string]Type{
	"val":   VAL,
	"var":   VAR,
	"if":    IF,
	"else":  ELSE,
	"throw": THROW,
	"true":  TRUE,
	"false": FALSE,
	"null":  NULL,
	"this":  THIS,
}

// Operators maps operator text to token types.  Two-character operators must
// be matched before their one-character prefixes.
var Operators = map[string]Type{
	"+":  PLUS,
	"-":  MINUS,
	"*":  STAR,
	"/":  SLASH,
	"%":  PERCENT,
	"==": EQ,
	"!=": NE,
	"<":  LT,
	"<=": LE,
	">":  GT,
	">=": GE,
	"&&": AND,
	"||": OR,
	"!":  NOT,
	"=":  ASSIGN,
	"+=": PLUS_ASSIGN,
	"-=": MINUS_ASSIGN,
	"*=": STAR_ASSIGN,
	"/=": SLASH_ASSIGN,
	".":  DOT,
	",":  COMMA,
	":":  COLON,
	";":  SEMICOLON,
	"(":  PAREN_L,
	")":  PAREN_R,
}

type Location struct {
	File string // a name representing the source stream
	Pos  int    // byte offset from the start of the stream
	Line int    // line number (starting at 1 when tracked)
	Col  int    // line column number (starting at 1 when tracked)
}

func (loc *Location) String() string {
	switch {
	case loc == nil:
		return "<unknown>"
	case loc.Pos < 0:
		return loc.File
	case loc.Line == 0:
		return fmt.Sprintf("%s[%d]", loc.File, loc.Pos)
	case loc.Col == 0:
		return fmt.Sprintf("%s:%d", loc.File, loc.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Col)
	}
}

type LocationError struct {
	Err    error
	Source *Location
}

func (err *LocationError) Error() string {
	return fmt.Sprintf("%s: %s", err.Source, err.Err)
}

func (err *LocationError) Unwrap() error {
	return err.Err
}
