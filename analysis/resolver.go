// Copyright © 2024 The ELPS authors

package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/parser"
	"github.com/luthersystems/fragmenteval/parser/ast"
	"github.com/luthersystems/fragmenteval/parser/token"
	"github.com/luthersystems/fragmenteval/target"
)

// ErrDumbMode is returned by a Facade whose indexes are not ready.
var ErrDumbMode = errors.New("code analysis is unavailable while indexes are being built")

// Facade resolves fragments against the program.  Implementations must be
// free of side effects so that analysis can be repeated.
type Facade interface {
	AnalyzeWithAllCompilerChecks(ctx context.Context, f *ast.File, scope *fragment.Context) (*BindingContext, []Diagnostic, error)
}

// Names with a fixed meaning in fragments.
const (
	ThisName         = "this"
	FieldName        = "field"
	CompletionName   = "$completion"
	LabelSuffix      = "_DebugLabel"
	ContinuationType = "kotlin.coroutines.Continuation"
	InlineUnitPrefix = "Generated_for_debugger_class$inline$"
)

// Resolver implements Facade for fragments evaluated in a fragment.Context.
type Resolver struct{}

// NewResolver returns a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// AnalyzeWithAllCompilerChecks implements Facade.
func (*Resolver) AnalyzeWithAllCompilerChecks(ctx context.Context, f *ast.File, scope *fragment.Context) (*BindingContext, []Diagnostic, error) {
	if scope == nil {
		scope = &fragment.Context{}
	}
	r := &resolver{
		ctx:      ctx,
		scope:    scope,
		inlines:  make(map[*fragment.Function]*Inline),
		localFns: make(map[*fragment.LocalFunction]*Symbol),
		units:    make(map[string]bool),
	}
	r.frame = r.frameScope()
	fr := &fileResolver{resolver: r, bc: newBindingContext(f), file: f.Name}
	if err := fr.resolveFile(NewScope(ScopeFragment, r.frame)); err != nil {
		return nil, nil, err
	}
	fr.bc.Inlines = r.order
	return fr.bc, r.diags, nil
}

type resolver struct {
	ctx      context.Context
	scope    *fragment.Context
	frame    *Scope
	diags    []Diagnostic
	inlines  map[*fragment.Function]*Inline
	order    []*Inline
	localFns map[*fragment.LocalFunction]*Symbol
	units    map[string]bool
}

// frameScope declares the names visible at the breakpoint.
func (r *resolver) frameScope() *Scope {
	frame := NewScope(ScopeFrame, nil)
	if this := r.scope.This; this != nil {
		for _, p := range this.Properties {
			frame.Define(&Symbol{Name: p.Name, Kind: SymProperty, Type: r.typeName(p.Type), Mutable: p.Mutable, Owner: this.Type})
		}
		frame.Define(&Symbol{Name: ThisName, Kind: SymThis, Type: this.Type})
		if acc := r.scope.Accessor; acc != "" {
			typ := target.TypeAny
			if p, ok := r.scope.Property(acc); ok {
				typ = r.typeName(p.Type)
			}
			frame.Define(&Symbol{Name: FieldName, Kind: SymField, Type: typ, Owner: this.Type, Backing: acc})
		}
	}
	for _, l := range r.scope.Locals {
		if sym := frame.LookupLocal(l.Name); sym != nil && sym.Kind == SymCaptured {
			continue
		}
		local, _ := r.scope.Local(l.Name)
		frame.Define(&Symbol{Name: local.Name, Kind: SymCaptured, Type: r.typeName(local.Type), Mutable: local.Mutable, Depth: local.Depth})
	}
	frame.Define(&Symbol{Name: CompletionName, Kind: SymCoroutine, Type: ContinuationType})
	return frame
}

// typeName normalizes a declared type.  Simple class names are qualified
// when the class is known.
func (r *resolver) typeName(t string) string {
	switch t {
	case "":
		return target.TypeAny
	case target.TypeAny, target.TypeInt, target.TypeDouble, target.TypeBoolean, target.TypeString, target.TypeUnit, target.TypeNothing:
		return t
	}
	if qual, ok := r.scope.Class(t); ok {
		return qual
	}
	return t
}

func (r *resolver) report(file string, loc *token.Location, sev Severity, category string, format string, v ...interface{}) {
	r.diags = append(r.diags, Diagnostic{
		Category: category,
		Severity: sev,
		File:     file,
		Source:   loc,
		Msg:      fmt.Sprintf(format, v...),
	})
}

// fileResolver resolves the statements of one file: the fragment itself or
// an inline function body.
type fileResolver struct {
	*resolver
	bc       *BindingContext
	file     string
	inline   bool
	captured map[*Symbol]bool
}

func (r *fileResolver) errorf(n ast.Node, category string, format string, v ...interface{}) {
	r.report(r.file, n.Loc(), SeverityError, category, format, v...)
}

func (r *fileResolver) resolveFile(sc *Scope) error {
	for i, stmt := range r.bc.File.Stmts {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		t := r.stmt(sc, stmt)
		if i == len(r.bc.File.Stmts)-1 {
			if _, ok := stmt.(*ast.ExprStmt); ok {
				r.bc.ResultType = t
			}
		}
	}
	return r.ctx.Err()
}

func (r *fileResolver) stmt(sc *Scope, stmt ast.Stmt) string {
	switch s := stmt.(type) {
	case *ast.DeclStmt:
		vt := r.expr(sc, s.Value)
		typ := ""
		if s.Type != "" {
			typ = r.typeName(s.Type)
			if !assignable(typ, vt) {
				r.errorf(s.Value, TypeMismatch, "Type mismatch: inferred type is %s but %s was expected", vt, typ)
			}
		} else {
			typ = vt
			if typ == target.TypeNull || typ == target.TypeNothing || typ == target.TypeUnit {
				typ = target.TypeAny
			}
		}
		sym := &Symbol{Name: s.Name.Name, Kind: SymLocal, Type: typ, Mutable: s.Mutable, Decl: s}
		sc.Define(sym)
		r.bc.Decls[s] = sym
		r.bc.Symbols[s.Name] = sym
		return target.TypeUnit
	case *ast.AssignStmt:
		r.assign(sc, s)
		return target.TypeUnit
	case *ast.ThrowStmt:
		r.expr(sc, s.X)
		return target.TypeNothing
	case *ast.ExprStmt:
		return r.expr(sc, s.X)
	default:
		return target.TypeUnit
	}
}

var compoundOps = map[token.Type]token.Type{
	token.PLUS_ASSIGN:  token.PLUS,
	token.MINUS_ASSIGN: token.MINUS,
	token.STAR_ASSIGN:  token.STAR,
	token.SLASH_ASSIGN: token.SLASH,
}

func (r *fileResolver) assign(sc *Scope, s *ast.AssignStmt) {
	var tt string
	switch lhs := ast.Unparen(s.Target).(type) {
	case *ast.Ident:
		sym := r.ident(sc, lhs)
		if sym == nil {
			tt = target.TypeAny
			break
		}
		tt = sym.Type
		r.bc.Types[lhs] = tt
		if !sym.Mutable {
			r.errorf(lhs, ValReassignment, "Val cannot be reassigned: %s", lhs.Name)
		}
		sym.Assigned = true
	case *ast.SelectorExpr:
		acc := r.selector(sc, lhs)
		if acc == nil {
			tt = target.TypeAny
			break
		}
		tt = acc.Type
		r.bc.Types[lhs] = tt
		if acc.Getter || !r.writable(acc) {
			r.errorf(lhs, ValReassignment, "Val cannot be reassigned: %s", lhs.Name.Name)
		}
	default:
		tt = target.TypeAny
	}
	vt := r.expr(sc, s.Value)
	if op, ok := compoundOps[s.Op]; ok {
		vt = r.binaryType(s, op, tt, vt)
	}
	if !assignable(tt, vt) {
		r.errorf(s.Value, TypeMismatch, "Type mismatch: inferred type is %s but %s was expected", vt, tt)
	}
}

func (r *fileResolver) writable(acc *Access) bool {
	if r.scope.This == nil || acc.Owner != r.scope.This.Type {
		return true
	}
	p, ok := r.scope.Property(acc.Name)
	return !ok || p.Mutable
}

func (r *fileResolver) expr(sc *Scope, x ast.Expr) string {
	t := r.exprType(sc, x)
	r.bc.Types[x] = t
	return t
}

func (r *fileResolver) exprType(sc *Scope, x ast.Expr) string {
	switch x := x.(type) {
	case *ast.IntLit:
		if x.Value > math.MaxInt32 {
			r.errorf(x, IntLiteralOutOfRange, "The value is out of range")
		}
		return target.TypeInt
	case *ast.FloatLit:
		return target.TypeDouble
	case *ast.StringLit:
		return target.TypeString
	case *ast.BoolLit:
		return target.TypeBoolean
	case *ast.NullLit:
		return target.TypeNull
	case *ast.Ident:
		sym := r.ident(sc, x)
		if sym == nil {
			return target.TypeAny
		}
		return sym.Type
	case *ast.ParenExpr:
		return r.expr(sc, x.X)
	case *ast.UnaryExpr:
		if lit, ok := x.X.(*ast.IntLit); ok && x.Op == token.MINUS && lit.Value == -math.MinInt32 {
			r.bc.Types[lit] = target.TypeInt
			return target.TypeInt
		}
		t := r.expr(sc, x.X)
		switch x.Op {
		case token.MINUS:
			if isNumeric(t) || isDynamic(t) {
				return t
			}
		case token.NOT:
			if t == target.TypeBoolean || isDynamic(t) {
				return target.TypeBoolean
			}
		}
		r.errorf(x, TypeMismatch, "Operator '%v' cannot be applied to %s", x.Op, t)
		return target.TypeAny
	case *ast.BinaryExpr:
		a := r.expr(sc, x.X)
		b := r.expr(sc, x.Y)
		return r.binaryType(x, x.Op, a, b)
	case *ast.IfExpr:
		c := r.expr(sc, x.Cond)
		if c != target.TypeBoolean && !isDynamic(c) {
			r.errorf(x.Cond, TypeMismatch, "Type mismatch: inferred type is %s but Boolean was expected", c)
		}
		return commonType(r.expr(sc, x.Then), r.expr(sc, x.Else))
	case *ast.SelectorExpr:
		acc := r.selector(sc, x)
		if acc == nil {
			return target.TypeAny
		}
		return acc.Type
	case *ast.CallExpr:
		return r.call(sc, x)
	default:
		return target.TypeAny
	}
}

func (r *fileResolver) binaryType(n ast.Node, op token.Type, a, b string) string {
	// An operand of type Nothing never completes normally, so it takes the
	// type of the other operand.
	switch {
	case a == target.TypeNothing && b == target.TypeNothing:
		a, b = target.TypeAny, target.TypeAny
	case a == target.TypeNothing:
		a = b
	case b == target.TypeNothing:
		b = a
	}
	switch op {
	case token.EQ, token.NE:
		return target.TypeBoolean
	case token.AND, token.OR:
		if (a == target.TypeBoolean || isDynamic(a)) && (b == target.TypeBoolean || isDynamic(b)) {
			return target.TypeBoolean
		}
	case token.PLUS:
		if a == target.TypeString {
			return target.TypeString
		}
		if t := arithmeticType(a, b); t != "" {
			return t
		}
	case token.MINUS, token.STAR, token.SLASH, token.PERCENT:
		if t := arithmeticType(a, b); t != "" {
			return t
		}
	case token.LT, token.LE, token.GT, token.GE:
		if (a == target.TypeString && (b == target.TypeString || isDynamic(b))) || arithmeticType(a, b) != "" {
			return target.TypeBoolean
		}
	}
	r.errorf(n, TypeMismatch, "Operator '%v' cannot be applied to %s and %s", op, a, b)
	return target.TypeAny
}

// ident resolves a name.  In the fragment, names not declared anywhere are
// runtime-only bindings and resolve to implicit frame variables.
func (r *fileResolver) ident(sc *Scope, id *ast.Ident) *Symbol {
	sym := sc.Lookup(id.Name)
	if sym == nil && !r.inline && id.Name != ThisName {
		kind := SymImplicit
		if strings.HasSuffix(id.Name, LabelSuffix) {
			kind = SymLabel
		}
		sym = &Symbol{Name: id.Name, Kind: kind, Type: target.TypeAny, Mutable: kind == SymImplicit}
		r.frame.Define(sym)
	}
	if sym == nil {
		if id.Name == ThisName {
			r.errorf(id, UnresolvedReference, "'this' is not defined in this context")
		} else {
			r.errorf(id, UnresolvedReference, "Unresolved reference: %s", id.Name)
		}
		return nil
	}
	r.use(id, sym)
	return sym
}

func (r *fileResolver) use(id *ast.Ident, sym *Symbol) {
	r.bc.Symbols[id] = sym
	sym.References++
	if !sym.Kind.Captured() {
		return
	}
	if r.captured == nil {
		r.captured = make(map[*Symbol]bool)
	}
	if !r.captured[sym] {
		r.captured[sym] = true
		r.bc.Captured = append(r.bc.Captured, sym)
	}
}

func (r *fileResolver) selector(sc *Scope, sel *ast.SelectorExpr) *Access {
	if acc, ok := r.bc.Selectors[sel]; ok {
		return acc
	}
	rt := r.expr(sc, sel.X)
	name := sel.Name.Name
	var acc *Access
	switch {
	case r.scope.This != nil && rt == r.scope.This.Type:
		p, ok := r.scope.Property(name)
		if !ok {
			r.errorf(sel.Name, UnresolvedReference, "Unresolved reference: %s", name)
			return nil
		}
		acc = &Access{Owner: rt, Name: name, Type: r.typeName(p.Type)}
	case rt == target.TypeString && name == "length":
		acc = &Access{Owner: classOf(rt), Name: name, Type: target.TypeInt, Getter: true}
	case target.Primitive(rt) || rt == target.TypeUnit || rt == target.TypeNothing || rt == target.TypeNull:
		r.errorf(sel.Name, UnresolvedReference, "Unresolved reference: %s", name)
		return nil
	default:
		acc = &Access{Owner: classOf(rt), Name: name, Type: target.TypeAny}
	}
	r.bc.Selectors[sel] = acc
	return acc
}

func (r *fileResolver) call(sc *Scope, c *ast.CallExpr) string {
	var call *Call
	switch fun := c.Fun.(type) {
	case *ast.Ident:
		call = r.callFunction(sc, c, fun)
	case *ast.SelectorExpr:
		call = r.callMember(sc, c, fun)
	default:
		r.expr(sc, fun)
		r.args(sc, c)
		r.errorf(c, UnresolvedReference, "Expression cannot be invoked as a function")
	}
	if call == nil {
		return target.TypeAny
	}
	if call.Result == "" {
		call.Result = target.TypeUnit
	}
	r.bc.Calls[c] = call
	return call.Result
}

func (r *fileResolver) args(sc *Scope, c *ast.CallExpr) []string {
	types := make([]string, len(c.Args))
	for i, arg := range c.Args {
		types[i] = r.expr(sc, arg)
	}
	return types
}

func (r *fileResolver) checkArgs(c *ast.CallExpr, name string, params []string, args []string) {
	for i, p := range params {
		if i < len(args) && !assignable(r.typeName(p), args[i]) {
			r.errorf(c.Args[i], TypeMismatch, "Type mismatch in call of %s: inferred type is %s but %s was expected", name, args[i], p)
		}
	}
}

func isCompletion(x ast.Expr) bool {
	id, ok := x.(*ast.Ident)
	return ok && id.Name == CompletionName
}

func (r *fileResolver) callFunction(sc *Scope, c *ast.CallExpr, id *ast.Ident) *Call {
	name := id.Name
	args := r.args(sc, c)
	n := len(args)
	threaded := n > 0 && isCompletion(c.Args[n-1])

	if !r.inline {
		lfs := r.scope.LocalFunctionsNamed(name)
		for _, lf := range lfs {
			if len(lf.Params) != n {
				continue
			}
			r.checkArgs(c, name, lf.Params, args)
			sym := r.localFunction(lf)
			r.use(id, sym)
			return &Call{Kind: CallLocalFunction, Name: "invoke", Params: lf.Params, Result: r.typeName(lf.Result), Function: sym}
		}
		if len(lfs) > 0 {
			r.errorf(c, ArgumentCountMismatch, "No value passed for parameters of %s: expected %d arguments", name, len(lfs[0].Params))
			return nil
		}
	}

	fns := r.scope.FunctionsNamed(name)
	for _, fn := range fns {
		plain := len(fn.Params) == n && !(fn.Suspend && threaded)
		withCompletion := fn.Suspend && threaded && len(fn.Params) == n-1
		if !plain && !withCompletion {
			continue
		}
		r.checkArgs(c, name, fn.Params, args)
		for _, m := range fn.Markers {
			r.errorf(c, m, "Usage of %s.%s is reported as %s", fn.Owner, fn.Name, m)
		}
		call := &Call{
			Kind:     CallStatic,
			Owner:    fn.Owner,
			Name:     fn.Name,
			Params:   fn.Params,
			Result:   r.typeName(fn.Result),
			Suspend:  fn.Suspend,
			Threaded: withCompletion,
		}
		if fn.Result == "" {
			call.Result = target.TypeUnit
		}
		if fn.Inline {
			call.Kind = CallInline
			call.Inline = r.inlineFunction(fn)
			call.Owner = call.Inline.Unit
		}
		if fn.Suspend && !r.inline {
			r.bc.SuspendCalls = append(r.bc.SuspendCalls, c)
		}
		return call
	}
	if len(fns) > 0 {
		r.errorf(c, ArgumentCountMismatch, "No function %s accepts %d arguments", name, n)
		return nil
	}
	if qual, ok := r.scope.Class(name); ok {
		return &Call{Kind: CallConstructor, Owner: qual, Name: name, Result: qual}
	}
	if b, ok := builtinFunctions[name]; ok {
		if len(b.params) != n {
			r.errorf(c, ArgumentCountMismatch, "No function %s accepts %d arguments", name, n)
			return nil
		}
		return &Call{Kind: CallStatic, Owner: b.owner, Name: name, Params: b.params, Result: b.result}
	}
	r.errorf(id, UnresolvedReference, "Unresolved reference: %s", name)
	return nil
}

func (r *fileResolver) localFunction(lf *fragment.LocalFunction) *Symbol {
	if sym, ok := r.localFns[lf]; ok {
		return sym
	}
	sym := &Symbol{
		Name:          lf.Name,
		Kind:          SymLocalFunction,
		Type:          "kotlin.jvm.functions.Function" + strconv.Itoa(len(lf.Params)),
		LocalFunction: lf,
	}
	r.localFns[lf] = sym
	return sym
}

func (r *fileResolver) callMember(sc *Scope, c *ast.CallExpr, sel *ast.SelectorExpr) *Call {
	name := sel.Name.Name
	if id, ok := sel.X.(*ast.Ident); ok && sc.Lookup(id.Name) == nil {
		if qual, ok := r.scope.Class(id.Name); ok {
			return r.callStatic(sc, c, qual, name)
		}
	}
	rt := r.expr(sc, sel.X)
	args := r.args(sc, c)
	sig, known := anyMembers[name]
	if !known && rt == target.TypeString {
		sig, known = stringMembers[name]
	}
	switch {
	case known:
		if len(sig.params) != len(args) {
			r.errorf(c, ArgumentCountMismatch, "No method %s accepts %d arguments", name, len(args))
			return nil
		}
		return &Call{Kind: CallVirtual, Owner: classOf(rt), Name: name, Params: sig.params, Result: sig.result}
	case target.Primitive(rt) || rt == target.TypeUnit || rt == target.TypeNothing || rt == target.TypeNull:
		r.errorf(sel.Name, UnresolvedReference, "Unresolved reference: %s", name)
		return nil
	}
	return &Call{Kind: CallVirtual, Owner: classOf(rt), Name: name, Result: target.TypeAny}
}

func (r *fileResolver) callStatic(sc *Scope, c *ast.CallExpr, class string, name string) *Call {
	args := r.args(sc, c)
	call := &Call{Kind: CallStatic, Owner: class, Name: name, Result: target.TypeAny}
	if class != "java.lang.Math" {
		return call
	}
	switch name {
	case "max", "min":
		if len(args) != 2 {
			r.errorf(c, ArgumentCountMismatch, "Math.%s expects 2 arguments", name)
			return nil
		}
		call.Result = arithmeticType(args[0], args[1])
	case "abs":
		if len(args) != 1 {
			r.errorf(c, ArgumentCountMismatch, "Math.abs expects 1 argument")
			return nil
		}
		call.Result = arithmeticType(args[0], args[0])
	default:
		r.errorf(c.Fun, UnresolvedReference, "Unresolved reference: %s", name)
		return nil
	}
	if call.Result == "" {
		r.errorf(c, TypeMismatch, "Math.%s expects numeric arguments", name)
		return nil
	}
	return call
}

// inlineFunction analyzes the body of fn once.  Problems in the body are
// reported against the body's own file.
func (r *fileResolver) inlineFunction(fn *fragment.Function) *Inline {
	if inl, ok := r.inlines[fn]; ok {
		return inl
	}
	unit := InlineUnitPrefix + fn.Name
	for i := 2; r.units[unit]; i++ {
		unit = InlineUnitPrefix + fn.Name + "$" + strconv.Itoa(i)
	}
	r.units[unit] = true
	inl := &Inline{Func: fn, Unit: unit}
	r.inlines[fn] = inl
	r.order = append(r.order, inl)

	file := fn.BodyFile
	if file == "" {
		file = strings.ReplaceAll(fn.Owner, ".", "/") + ".kt"
	}
	f := parser.Parse(file, fn.Body)
	for _, e := range f.Errors {
		r.report(file, e.Source, SeverityError, "SYNTAX", "%s", e.Msg)
	}
	sc := NewScope(ScopeInline, nil)
	if len(fn.ParamNames) != len(fn.Params) {
		r.report(file, nil, SeverityError, ArgumentCountMismatch, "inline function %s declares %d parameter names for %d parameters", fn.Name, len(fn.ParamNames), len(fn.Params))
	}
	for i, pn := range fn.ParamNames {
		typ := target.TypeAny
		if i < len(fn.Params) {
			typ = r.typeName(fn.Params[i])
		}
		sym := &Symbol{Name: pn, Kind: SymLocal, Type: typ}
		sc.Define(sym)
		inl.Params = append(inl.Params, sym)
	}
	body := &fileResolver{resolver: r.resolver, bc: newBindingContext(f), file: file, inline: true}
	// Cancellation is observed by the fragment resolver after this returns.
	_ = body.resolveFile(sc)
	inl.File = f
	inl.Binding = body.bc
	return inl
}
