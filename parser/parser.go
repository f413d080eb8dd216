// Copyright © 2018 The ELPS authors

// Package parser implements a recursive descent parser for code fragments.
// The parser never gives up on a fragment.  Text it cannot understand is
// replaced by error elements (ast.BadExpr and ast.BadStmt) and recorded in
// ast.File.Errors so callers can decide how to report them.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/luthersystems/fragmenteval/parser/ast"
	"github.com/luthersystems/fragmenteval/parser/lexer"
	"github.com/luthersystems/fragmenteval/parser/token"
)

// Parse parses a fragment of source text.
func Parse(name string, text string) *ast.File {
	p := New(name, text)
	return p.ParseFile()
}

// ParseExpr parses text which must contain exactly one expression.
func ParseExpr(text string) (ast.Expr, error) {
	f := Parse("expr", text)
	if f.HasErrors() {
		return nil, f.Errors[0]
	}
	if len(f.Stmts) != 1 {
		return nil, fmt.Errorf("expected a single expression")
	}
	stmt, ok := f.Stmts[0].(*ast.ExprStmt)
	if !ok {
		return nil, fmt.Errorf("expected an expression")
	}
	return stmt.X, nil
}

// Parser is a fragment parser.
type Parser struct {
	src  *TokenSource
	file *ast.File
	end  int // offset just past the last consumed token
}

// New initializes and returns a Parser for text.
func New(name string, text string) *Parser {
	s := token.NewScanner(name, text)
	return &Parser{
		src:  NewTokenSource(lexer.New(s)),
		file: &ast.File{Name: name, Text: text},
	}
}

// ParseFile parses a sequence of statements separated by newlines or
// semicolons.
func (p *Parser) ParseFile() *ast.File {
	p.skipSeparators()
	for p.peekType() != token.EOF {
		stmt := p.ParseStatement()
		p.file.Stmts = append(p.file.Stmts, stmt)
		switch p.peekType() {
		case token.EOF, token.NEWLINE, token.SEMICOLON:
		default:
			p.file.Stmts = append(p.file.Stmts, p.badStatement())
		}
		p.skipSeparators()
	}
	return p.file
}

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() ast.Stmt {
	switch p.peekType() {
	case token.VAL, token.VAR:
		return p.parseDecl()
	case token.THROW:
		p.scan()
		start := p.src.Token().Source
		x := p.ParseExpression()
		return &ast.ThrowStmt{Span: ast.NewSpan(start, p.end), X: x}
	}
	start := p.src.Peek().Source
	x := p.ParseExpression()
	if op := p.peekType(); isAssignOp(op) {
		p.scan()
		switch ast.Unparen(x).(type) {
		case *ast.Ident, *ast.SelectorExpr:
		default:
			p.errorf(x.Loc(), "invalid assignment target")
		}
		value := p.ParseExpression()
		return &ast.AssignStmt{Span: ast.NewSpan(start, p.end), Op: op, Target: x, Value: value}
	}
	return &ast.ExprStmt{Span: ast.NewSpan(start, p.end), X: x}
}

func (p *Parser) parseDecl() ast.Stmt {
	p.scan()
	decl := p.src.Token()
	if p.peekType() != token.IDENT {
		return p.badStatementf(decl.Source, "expected variable name after %s", decl.Text)
	}
	p.scan()
	name := p.ident(p.src.Token())
	var typ string
	if p.accept(token.COLON) {
		typ = p.parseTypeName()
		if typ == "" {
			return p.badStatementf(decl.Source, "expected type name")
		}
	}
	if !p.accept(token.ASSIGN) {
		return p.badStatementf(decl.Source, "expected '=' in declaration of %s", name.Name)
	}
	value := p.ParseExpression()
	return &ast.DeclStmt{
		Span:    ast.NewSpan(decl.Source, p.end),
		Mutable: decl.Type == token.VAR,
		Name:    name,
		Type:    typ,
		Value:   value,
	}
}

func (p *Parser) parseTypeName() string {
	var parts []string
	for p.accept(token.IDENT) {
		parts = append(parts, p.src.Token().Text)
		if p.peekType() != token.DOT || p.src.PeekN(1).Type != token.IDENT {
			break
		}
		p.scan()
	}
	return strings.Join(parts, ".")
}

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() ast.Expr {
	return p.parseBinary(1)
}

var precedence = map[token.Type]int{
	token.OR:      1,
	token.AND:     2,
	token.EQ:      3,
	token.NE:      3,
	token.LT:      4,
	token.LE:      4,
	token.GT:      4,
	token.GE:      4,
	token.PLUS:    5,
	token.MINUS:   5,
	token.STAR:    6,
	token.SLASH:   6,
	token.PERCENT: 6,
}

func (p *Parser) parseBinary(minPrec int) ast.Expr {
	x := p.parseUnary()
	for {
		op := p.peekType()
		prec, ok := precedence[op]
		if !ok || prec < minPrec {
			return x
		}
		p.scan()
		y := p.parseBinary(prec + 1)
		x = &ast.BinaryExpr{Span: ast.NewSpan(x.Loc(), p.end), Op: op, X: x, Y: y}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.peekType() {
	case token.MINUS, token.NOT:
		p.scan()
		tok := p.src.Token()
		x := p.parseUnary()
		return &ast.UnaryExpr{Span: ast.NewSpan(tok.Source, p.end), Op: tok.Type, X: x}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	x := p.parsePrimary()
	for {
		switch p.peekType() {
		case token.DOT:
			p.scan()
			x = p.parseSelector(x)
		case token.PAREN_L:
			x = p.parseCall(x)
		case token.NEWLINE:
			// A member access may continue on the following line.
			if p.nextAfterNewlines() != token.DOT {
				return x
			}
			p.skipNewlines()
		default:
			return x
		}
	}
}

func (p *Parser) parseSelector(x ast.Expr) ast.Expr {
	if p.peekType() != token.IDENT {
		loc := p.src.Token().Source
		p.errorf(loc, "expected member name after '.'")
		return &ast.BadExpr{Span: ast.NewSpan(x.Loc(), p.end), Msg: "expected member name"}
	}
	p.scan()
	name := p.ident(p.src.Token())
	return &ast.SelectorExpr{Span: ast.NewSpan(x.Loc(), p.end), X: x, Name: name}
}

func (p *Parser) parseCall(fun ast.Expr) ast.Expr {
	p.scan() // (
	lparen := p.src.Token()
	var args []ast.Expr
	for p.peekType() != token.PAREN_R {
		if p.peekType() == token.EOF {
			p.errorf(lparen.Source, "unmatched '('")
			return &ast.BadExpr{Span: ast.NewSpan(fun.Loc(), p.end), Msg: "unmatched '('"}
		}
		args = append(args, p.ParseExpression())
		if !p.accept(token.COMMA) {
			break
		}
	}
	if !p.accept(token.PAREN_R) {
		return p.badExprf(fun.Loc(), "expected ')' to close argument list")
	}
	return &ast.CallExpr{
		Span:   ast.NewSpan(fun.Loc(), p.end),
		Fun:    fun,
		Args:   args,
		Rparen: p.src.Token().Source.Pos,
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.src.Peek()
	switch tok.Type {
	case token.IDENT, token.THIS:
		p.scan()
		return p.ident(tok)
	case token.INT:
		p.scan()
		v, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			p.errorf(tok.Source, "integer literal out of range: %s", tok.Text)
			return &ast.BadExpr{Span: ast.NewSpan(tok.Source, p.end), Msg: "integer literal out of range"}
		}
		return &ast.IntLit{Span: ast.NewSpan(tok.Source, p.end), Value: v}
	case token.FLOAT:
		p.scan()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			p.errorf(tok.Source, "invalid floating point literal: %s", tok.Text)
			return &ast.BadExpr{Span: ast.NewSpan(tok.Source, p.end), Msg: "invalid floating point literal"}
		}
		return &ast.FloatLit{Span: ast.NewSpan(tok.Source, p.end), Value: v}
	case token.STRING:
		p.scan()
		v, err := unquote(tok.Text)
		if err != nil {
			p.errorf(tok.Source, "%v", err)
			return &ast.BadExpr{Span: ast.NewSpan(tok.Source, p.end), Msg: err.Error()}
		}
		return &ast.StringLit{Span: ast.NewSpan(tok.Source, p.end), Value: v}
	case token.TRUE, token.FALSE:
		p.scan()
		return &ast.BoolLit{Span: ast.NewSpan(tok.Source, p.end), Value: tok.Type == token.TRUE}
	case token.NULL:
		p.scan()
		return &ast.NullLit{Span: ast.NewSpan(tok.Source, p.end)}
	case token.PAREN_L:
		p.scan()
		x := p.ParseExpression()
		if !p.accept(token.PAREN_R) {
			return p.badExprf(tok.Source, "expected ')'")
		}
		return &ast.ParenExpr{Span: ast.NewSpan(tok.Source, p.end), X: x}
	case token.IF:
		return p.parseIf()
	case token.ERROR:
		p.scan()
		p.errorf(tok.Source, "%s", tok.Text)
		return &ast.BadExpr{Span: ast.NewSpan(tok.Source, p.end), Msg: tok.Text}
	case token.EOF, token.NEWLINE, token.SEMICOLON:
		p.errorf(tok.Source, "expected expression")
		return &ast.BadExpr{Span: ast.NewSpan(tok.Source, tok.Source.Pos), Msg: "expected expression"}
	default:
		p.scan()
		p.errorf(tok.Source, "unexpected %v", tok)
		return &ast.BadExpr{Span: ast.NewSpan(tok.Source, p.end), Msg: "unexpected " + tok.String()}
	}
}

func (p *Parser) parseIf() ast.Expr {
	p.scan()
	start := p.src.Token().Source
	if !p.accept(token.PAREN_L) {
		return p.badExprf(start, "expected '(' after if")
	}
	cond := p.ParseExpression()
	if !p.accept(token.PAREN_R) {
		return p.badExprf(start, "expected ')' after condition")
	}
	p.skipNewlines()
	then := p.ParseExpression()
	if p.nextAfterNewlines() != token.ELSE {
		return p.badExprf(start, "if must have both main and 'else' branches if used as an expression")
	}
	p.skipNewlines()
	p.scan() // else
	p.skipNewlines()
	els := p.ParseExpression()
	return &ast.IfExpr{Span: ast.NewSpan(start, p.end), Cond: cond, Then: then, Else: els}
}

func (p *Parser) ident(tok *token.Token) *ast.Ident {
	return &ast.Ident{Span: ast.NewSpan(tok.Source, tok.End()), Name: tok.Text}
}

// badStatement consumes tokens through the end of the current statement.
func (p *Parser) badStatement() ast.Stmt {
	tok := p.src.Peek()
	msg := "unexpected " + tok.String()
	if tok.Type == token.ERROR {
		msg = tok.Text
	}
	p.errorf(tok.Source, "%s", msg)
	p.skipStatement()
	return &ast.BadStmt{Span: ast.NewSpan(tok.Source, p.end), Msg: msg}
}

func (p *Parser) badStatementf(loc *token.Location, format string, v ...interface{}) ast.Stmt {
	msg := fmt.Sprintf(format, v...)
	p.errorf(loc, "%s", msg)
	p.skipStatement()
	return &ast.BadStmt{Span: ast.NewSpan(loc, p.end), Msg: msg}
}

func (p *Parser) badExprf(loc *token.Location, format string, v ...interface{}) ast.Expr {
	msg := fmt.Sprintf(format, v...)
	p.errorf(loc, "%s", msg)
	p.skipStatement()
	return &ast.BadExpr{Span: ast.NewSpan(loc, p.end), Msg: msg}
}

func (p *Parser) skipStatement() {
	for {
		switch p.peekType() {
		case token.EOF, token.NEWLINE, token.SEMICOLON:
			return
		}
		p.scan()
	}
}

func (p *Parser) errorf(loc *token.Location, format string, v ...interface{}) {
	p.file.Errors = append(p.file.Errors, &ast.ErrorElement{
		Source: loc,
		Msg:    fmt.Sprintf(format, v...),
	})
}

func (p *Parser) skipSeparators() {
	for p.accept(token.NEWLINE) || p.accept(token.SEMICOLON) {
	}
}

func (p *Parser) skipNewlines() {
	for p.accept(token.NEWLINE) {
	}
}

func (p *Parser) nextAfterNewlines() token.Type {
	for i := 0; ; i++ {
		if typ := p.src.PeekN(i).Type; typ != token.NEWLINE {
			return typ
		}
	}
}

func (p *Parser) accept(typ token.Type) bool {
	if p.peekType() != typ {
		return false
	}
	p.scan()
	return true
}

func (p *Parser) scan() {
	if !p.src.Scan() {
		return
	}
	tok := p.src.Token()
	switch tok.Type {
	case token.EOF:
	case token.ERROR:
		// Error tokens carry a message rather than source text.
		p.end = tok.Source.Pos + 1
	default:
		p.end = tok.End()
	}
}

func (p *Parser) peekType() token.Type {
	return p.src.Peek().Type
}

func isAssignOp(typ token.Type) bool {
	switch typ {
	case token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.STAR_ASSIGN, token.SLASH_ASSIGN:
		return true
	}
	return false
}

// unquote decodes a string literal including its surrounding quotes.
func unquote(lit string) (string, error) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", fmt.Errorf("malformed string literal")
	}
	body := lit[1 : len(lit)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch c {
		case '\\':
			i++
			if i >= len(body) {
				return "", fmt.Errorf("malformed string literal")
			}
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\', '$', '\'':
				b.WriteByte(body[i])
			default:
				return "", fmt.Errorf("illegal escape: \\%c", body[i])
			}
		case '$':
			if i+1 < len(body) && (body[i+1] == '{' || isIdentByte(body[i+1])) {
				return "", fmt.Errorf("string templates are not supported")
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func isIdentByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
