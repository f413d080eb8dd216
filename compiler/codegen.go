// Copyright © 2018 The ELPS authors

package compiler

import (
	"strconv"
	"strings"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/bytecode"
	"github.com/luthersystems/fragmenteval/parser/ast"
	"github.com/luthersystems/fragmenteval/parser/token"
	"github.com/luthersystems/fragmenteval/target"
)

// Compile generates the units of an analyzed fragment.
func Compile(res *analysis.Result) (*CompiledData, error) {
	bc := res.Binding
	params := parameters(bc)
	g := newCodegen(bc, len(params))
	for _, p := range params {
		if p.Origin == analysis.SymThis {
			g.this = p.Parameter
			continue
		}
		g.params[p.sym] = p.Parameter
	}
	if err := g.body(res.File, true); err != nil {
		return nil, err
	}
	data := &CompiledData{
		MainClass:  MainClass,
		MainMethod: MainMethod,
		ResultType: bc.ResultType,
	}
	main := &bytecode.Method{
		Name:   MainMethod,
		Result: target.TypeAny,
		Locals: g.nlocals,
		Code:   g.code,
	}
	for _, p := range params {
		data.Parameters = append(data.Parameters, p.Parameter)
		data.Signature = append(data.Signature, p.Type)
		main.Params = append(main.Params, p.Type)
		if p.Depth > 0 {
			data.CrossingBoundary = append(data.CrossingBoundary, p.Name)
		}
	}
	data.Units = append(data.Units, &bytecode.Unit{Name: MainClass, Methods: []*bytecode.Method{main}})
	for _, inl := range bc.Inlines {
		u, err := compileInline(inl)
		if err != nil {
			return nil, err
		}
		data.Units = append(data.Units, u)
	}
	return data, nil
}

type param struct {
	*Parameter
	sym *analysis.Symbol
}

// parameters builds the manifest in order of first reference.  Properties
// are read through the receiver, so they share the parameter of this.
func parameters(bc *analysis.BindingContext) []param {
	var params []param
	var this *Parameter
	ensureThis := func(typ string) {
		if this == nil {
			this = &Parameter{Kind: Ordinary, Name: analysis.ThisName, Lookup: analysis.ThisName, Origin: analysis.SymThis, Type: typ, ValueType: typ}
			params = append(params, param{Parameter: this})
		}
	}
	fnCount := make(map[string]int)
	for _, sym := range bc.Captured {
		if sym.Kind == analysis.SymLocalFunction {
			fnCount[sym.Name]++
		}
	}
	fnSeen := make(map[string]int)
	for _, sym := range bc.Captured {
		p := &Parameter{
			Kind:      Ordinary,
			Name:      sym.Name,
			Lookup:    sym.Name,
			Origin:    sym.Kind,
			Type:      sym.Type,
			ValueType: sym.Type,
			Depth:     sym.Depth,
		}
		switch sym.Kind {
		case analysis.SymThis:
			ensureThis(sym.Type)
			continue
		case analysis.SymProperty:
			ensureThis(sym.Owner)
			continue
		case analysis.SymField:
			p.Kind = FieldBacked
			p.Lookup = sym.Backing
		case analysis.SymCoroutine:
			p.Kind = CoroutineContext
		case analysis.SymLocalFunction:
			p.Kind = LocalFunction
			p.Lookup = sym.LocalFunction.Variable
			if fnCount[sym.Name] > 1 {
				fnSeen[sym.Name]++
				p.Name = sym.Name + "$" + strconv.Itoa(fnSeen[sym.Name])
			}
		case analysis.SymLabel:
			p.Lookup = strings.TrimSuffix(sym.Name, analysis.LabelSuffix)
		default:
			if sym.Assigned {
				p.Ref = true
				p.Type = RefClass(sym.Type)
			}
		}
		params = append(params, param{Parameter: p, sym: sym})
	}
	for i := range params {
		params[i].Index = i
	}
	return params
}

type codegen struct {
	bc      *analysis.BindingContext
	params  map[*analysis.Symbol]*Parameter
	this    *Parameter
	slots   map[*analysis.Symbol]int
	nlocals int
	code    []bytecode.Instr
}

func newCodegen(bc *analysis.BindingContext, nparams int) *codegen {
	return &codegen{
		bc:      bc,
		params:  make(map[*analysis.Symbol]*Parameter),
		slots:   make(map[*analysis.Symbol]int),
		nlocals: nparams,
	}
}

func compileInline(inl *analysis.Inline) (*bytecode.Unit, error) {
	if inl.Binding == nil || inl.File == nil {
		return nil, backendErrorf(nil, "inline function %s was not analyzed", inl.Func.Name)
	}
	if inl.File.HasErrors() {
		return nil, backendErrorf(inl.File.Errors[0].Source, "inline function %s: %s", inl.Func.Name, inl.File.Errors[0].Msg)
	}
	g := newCodegen(inl.Binding, len(inl.Params))
	for i, sym := range inl.Params {
		g.slots[sym] = i
	}
	if err := g.body(inl.File, false); err != nil {
		return nil, err
	}
	m := &bytecode.Method{
		Name:   inl.Func.Name,
		Params: inl.Func.Params,
		Result: inl.Func.Result,
		Locals: g.nlocals,
		Code:   g.code,
	}
	return &bytecode.Unit{Name: inl.Unit, Methods: []*bytecode.Method{m}}, nil
}

func (g *codegen) emit(in bytecode.Instr) int {
	g.code = append(g.code, in)
	return len(g.code) - 1
}

func (g *codegen) op(op bytecode.Opcode) {
	g.emit(bytecode.Instr{Op: op})
}

func (g *codegen) constant(c bytecode.Const) {
	g.emit(bytecode.Instr{Op: bytecode.CONST, Const: c})
}

func (g *codegen) load(slot int) {
	g.emit(bytecode.Instr{Op: bytecode.LOAD, Operand: slot})
}

func (g *codegen) store(slot int) {
	g.emit(bytecode.Instr{Op: bytecode.STORE, Operand: slot})
}

func (g *codegen) getfield(owner, name string) {
	g.emit(bytecode.Instr{Op: bytecode.GETFIELD, Owner: owner, Name: name})
}

func (g *codegen) putfield(owner, name string) {
	g.emit(bytecode.Instr{Op: bytecode.PUTFIELD, Owner: owner, Name: name})
}

// patch points the jump at pc to the next instruction.
func (g *codegen) patch(pc int) {
	g.code[pc].Operand = len(g.code)
}

// body compiles the statements of f.  The value of a trailing expression is
// returned, otherwise Unit.  The main method boxes its result.
func (g *codegen) body(f *ast.File, main bool) error {
	hasValue := false
	for i, stmt := range f.Stmts {
		last := i == len(f.Stmts)-1
		if err := g.stmt(stmt, last); err != nil {
			return err
		}
		if _, ok := stmt.(*ast.ExprStmt); ok && last {
			hasValue = true
		}
	}
	if !hasValue {
		g.constant(bytecode.UnitConst())
	}
	if main {
		g.op(bytecode.BOX)
	}
	g.op(bytecode.RETURN)
	return nil
}

func (g *codegen) stmt(stmt ast.Stmt, last bool) error {
	switch s := stmt.(type) {
	case *ast.DeclStmt:
		sym := g.bc.Decls[s]
		if sym == nil {
			return backendErrorf(s.Loc(), "unresolved declaration of %s", s.Name.Name)
		}
		if err := g.expr(s.Value); err != nil {
			return err
		}
		slot := g.nlocals
		g.nlocals++
		g.slots[sym] = slot
		g.store(slot)
	case *ast.AssignStmt:
		return g.assign(s)
	case *ast.ThrowStmt:
		if err := g.expr(s.X); err != nil {
			return err
		}
		g.op(bytecode.THROW)
	case *ast.ExprStmt:
		if err := g.expr(s.X); err != nil {
			return err
		}
		if !last {
			g.op(bytecode.POP)
		}
	default:
		return backendErrorf(stmt.Loc(), "cannot compile statement %T", stmt)
	}
	return nil
}

var arithmetic = map[token.Type]bytecode.Opcode{
	token.PLUS:    bytecode.ADD,
	token.MINUS:   bytecode.SUB,
	token.STAR:    bytecode.MUL,
	token.SLASH:   bytecode.DIV,
	token.PERCENT: bytecode.REM,
	token.EQ:      bytecode.EQ,
	token.NE:      bytecode.NE,
	token.LT:      bytecode.LT,
	token.LE:      bytecode.LE,
	token.GT:      bytecode.GT,
	token.GE:      bytecode.GE,
}

var compound = map[token.Type]token.Type{
	token.PLUS_ASSIGN:  token.PLUS,
	token.MINUS_ASSIGN: token.MINUS,
	token.STAR_ASSIGN:  token.STAR,
	token.SLASH_ASSIGN: token.SLASH,
}

// operator emits op for operands already on the stack.  String
// concatenation calls String.plus.
func (g *codegen) operator(op token.Type, left string) {
	if op == token.PLUS && left == target.TypeString {
		g.emit(bytecode.Instr{Op: bytecode.INVOKEVIRTUAL, Owner: "java.lang.String", Name: "plus", Operand: 1})
		return
	}
	g.op(arithmetic[op])
}

// assignValue leaves the value to assign on the stack.  For compound
// assignments the current value is computed by current, which must leave it
// on the stack.
func (g *codegen) assignValue(s *ast.AssignStmt, typ string, current func()) error {
	op, isCompound := compound[s.Op]
	if isCompound {
		current()
	}
	if err := g.expr(s.Value); err != nil {
		return err
	}
	if isCompound {
		g.operator(op, typ)
	}
	return nil
}

func (g *codegen) assign(s *ast.AssignStmt) error {
	switch lhs := ast.Unparen(s.Target).(type) {
	case *ast.Ident:
		sym := g.bc.Symbols[lhs]
		if sym == nil {
			return backendErrorf(lhs.Loc(), "unresolved reference: %s", lhs.Name)
		}
		typ := sym.Type
		if slot, ok := g.slots[sym]; ok {
			err := g.assignValue(s, typ, func() { g.load(slot) })
			if err != nil {
				return err
			}
			g.store(slot)
			return nil
		}
		if sym.Kind == analysis.SymProperty {
			if g.this == nil {
				return backendErrorf(lhs.Loc(), "property %s without receiver", lhs.Name)
			}
			g.load(g.this.Index)
			err := g.assignValue(s, typ, func() {
				g.op(bytecode.DUP)
				g.getfield(sym.Owner, sym.Name)
			})
			if err != nil {
				return err
			}
			g.putfield(sym.Owner, sym.Name)
			return nil
		}
		p := g.params[sym]
		if p == nil || !p.Ref {
			return backendErrorf(lhs.Loc(), "cannot assign to %s", lhs.Name)
		}
		g.load(p.Index)
		err := g.assignValue(s, typ, func() {
			g.op(bytecode.DUP)
			g.getfield(p.Type, RefElement)
		})
		if err != nil {
			return err
		}
		g.putfield(p.Type, RefElement)
		return nil
	case *ast.SelectorExpr:
		acc := g.bc.Selectors[lhs]
		if acc == nil || acc.Getter {
			return backendErrorf(lhs.Loc(), "cannot assign to %s", lhs.Name.Name)
		}
		if err := g.expr(lhs.X); err != nil {
			return err
		}
		err := g.assignValue(s, acc.Type, func() {
			g.op(bytecode.DUP)
			g.getfield(acc.Owner, acc.Name)
		})
		if err != nil {
			return err
		}
		g.putfield(acc.Owner, acc.Name)
		return nil
	default:
		return backendErrorf(s.Loc(), "invalid assignment target")
	}
}

func (g *codegen) expr(x ast.Expr) error {
	switch x := x.(type) {
	case *ast.IntLit:
		g.constant(bytecode.Int(x.Value))
	case *ast.FloatLit:
		g.constant(bytecode.Double(x.Value))
	case *ast.StringLit:
		g.constant(bytecode.String(x.Value))
	case *ast.BoolLit:
		g.constant(bytecode.Bool(x.Value))
	case *ast.NullLit:
		g.constant(bytecode.Null())
	case *ast.ParenExpr:
		return g.expr(x.X)
	case *ast.Ident:
		return g.ident(x)
	case *ast.UnaryExpr:
		if err := g.expr(x.X); err != nil {
			return err
		}
		if x.Op == token.NOT {
			g.op(bytecode.NOT)
		} else {
			g.op(bytecode.NEG)
		}
	case *ast.BinaryExpr:
		return g.binary(x)
	case *ast.IfExpr:
		if err := g.expr(x.Cond); err != nil {
			return err
		}
		jelse := g.emit(bytecode.Instr{Op: bytecode.JUMPIFNOT})
		if err := g.expr(x.Then); err != nil {
			return err
		}
		jend := g.emit(bytecode.Instr{Op: bytecode.JUMP})
		g.patch(jelse)
		if err := g.expr(x.Else); err != nil {
			return err
		}
		g.patch(jend)
	case *ast.SelectorExpr:
		acc := g.bc.Selectors[x]
		if acc == nil {
			return backendErrorf(x.Name.Loc(), "unresolved reference: %s", x.Name.Name)
		}
		if err := g.expr(x.X); err != nil {
			return err
		}
		if acc.Getter {
			g.emit(bytecode.Instr{Op: bytecode.INVOKEVIRTUAL, Owner: acc.Owner, Name: acc.Name})
		} else {
			g.getfield(acc.Owner, acc.Name)
		}
	case *ast.CallExpr:
		return g.call(x)
	case *ast.BadExpr:
		return backendErrorf(x.Loc(), "%s", x.Msg)
	default:
		return backendErrorf(x.Loc(), "cannot compile expression %T", x)
	}
	return nil
}

func (g *codegen) ident(id *ast.Ident) error {
	sym := g.bc.Symbols[id]
	if sym == nil {
		return backendErrorf(id.Loc(), "unresolved reference: %s", id.Name)
	}
	if slot, ok := g.slots[sym]; ok {
		g.load(slot)
		return nil
	}
	switch sym.Kind {
	case analysis.SymThis, analysis.SymProperty:
		if g.this == nil {
			return backendErrorf(id.Loc(), "%s without receiver", id.Name)
		}
		g.load(g.this.Index)
		if sym.Kind == analysis.SymProperty {
			g.getfield(sym.Owner, sym.Name)
		}
		return nil
	}
	p := g.params[sym]
	if p == nil {
		return backendErrorf(id.Loc(), "%s is not available here", id.Name)
	}
	g.load(p.Index)
	if p.Ref {
		g.getfield(p.Type, RefElement)
	}
	return nil
}

func (g *codegen) binary(x *ast.BinaryExpr) error {
	if err := g.expr(x.X); err != nil {
		return err
	}
	switch x.Op {
	case token.AND:
		jfalse := g.emit(bytecode.Instr{Op: bytecode.JUMPIFNOT})
		if err := g.expr(x.Y); err != nil {
			return err
		}
		jend := g.emit(bytecode.Instr{Op: bytecode.JUMP})
		g.patch(jfalse)
		g.constant(bytecode.Bool(false))
		g.patch(jend)
		return nil
	case token.OR:
		jrhs := g.emit(bytecode.Instr{Op: bytecode.JUMPIFNOT})
		g.constant(bytecode.Bool(true))
		jend := g.emit(bytecode.Instr{Op: bytecode.JUMP})
		g.patch(jrhs)
		if err := g.expr(x.Y); err != nil {
			return err
		}
		g.patch(jend)
		return nil
	}
	if _, ok := arithmetic[x.Op]; !ok {
		return backendErrorf(x.Loc(), "unsupported operator %v", x.Op)
	}
	if err := g.expr(x.Y); err != nil {
		return err
	}
	g.operator(x.Op, g.bc.TypeOf(x.X))
	return nil
}

func (g *codegen) args(c *ast.CallExpr) error {
	for _, arg := range c.Args {
		if err := g.expr(arg); err != nil {
			return err
		}
	}
	return nil
}

func (g *codegen) call(c *ast.CallExpr) error {
	call := g.bc.Calls[c]
	if call == nil {
		return backendErrorf(c.Loc(), "unresolved call")
	}
	n := len(c.Args)
	switch call.Kind {
	case analysis.CallStatic, analysis.CallInline:
		if call.Suspend && !call.Threaded {
			return backendErrorf(c.Loc(), "suspend function %s called without a continuation", call.Name)
		}
		if err := g.args(c); err != nil {
			return err
		}
		g.emit(bytecode.Instr{Op: bytecode.INVOKESTATIC, Owner: call.Owner, Name: call.Name, Operand: n})
	case analysis.CallConstructor:
		if err := g.args(c); err != nil {
			return err
		}
		g.emit(bytecode.Instr{Op: bytecode.NEW, Owner: call.Owner, Operand: n})
	case analysis.CallLocalFunction:
		p := g.params[call.Function]
		if p == nil {
			return backendErrorf(c.Loc(), "local function %s is not available here", call.Function.Name)
		}
		g.load(p.Index)
		if err := g.args(c); err != nil {
			return err
		}
		g.emit(bytecode.Instr{Op: bytecode.INVOKEVIRTUAL, Name: call.Name, Operand: n})
	case analysis.CallVirtual:
		sel, ok := c.Fun.(*ast.SelectorExpr)
		if !ok {
			return backendErrorf(c.Loc(), "virtual call without receiver")
		}
		if err := g.expr(sel.X); err != nil {
			return err
		}
		if err := g.args(c); err != nil {
			return err
		}
		g.emit(bytecode.Instr{Op: bytecode.INVOKEVIRTUAL, Owner: call.Owner, Name: call.Name, Operand: n})
	default:
		return backendErrorf(c.Loc(), "unsupported call kind %d", call.Kind)
	}
	return nil
}
