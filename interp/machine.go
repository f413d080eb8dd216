// Copyright © 2018 The ELPS authors

// Package interp executes compiled fragment units on a stack machine.
// Invocations of methods outside the interpreted units are delegated to an
// Env, so that their side effects happen in the debuggee.
package interp

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/luthersystems/fragmenteval/bytecode"
	"github.com/luthersystems/fragmenteval/target"
)

// DefaultStepLimit bounds the number of instructions executed by one Run.
const DefaultStepLimit = 1_000_000

// contextCheckInterval is the number of instructions between checks for
// cancellation.
const contextCheckInterval = 256

// Exception classes thrown by the machine itself.
const (
	ArithmeticException  = "java.lang.ArithmeticException"
	ClassCastException   = "java.lang.ClassCastException"
	NullPointerException = "java.lang.NullPointerException"
)

// Env performs operations in the debuggee on behalf of the machine.
type Env interface {
	InvokeStatic(ctx context.Context, class string, method string, args []target.Value) target.Result
	InvokeVirtual(ctx context.Context, recv target.Value, method string, args []target.Value) target.Result
	NewInstance(ctx context.Context, class string, args []target.Value) target.Result
	GetField(ctx context.Context, obj target.Value, field string) target.Result
	SetField(ctx context.Context, obj target.Value, field string, v target.Value) target.Result
	// Box converts a primitive value into its object form.
	Box(ctx context.Context, v target.Value) target.Result
}

// Option configures a Machine.
type Option func(*Machine)

// WithStepLimit bounds the number of instructions a Run may execute.
// A limit of zero or less selects DefaultStepLimit.
func WithStepLimit(n int) Option {
	return func(m *Machine) {
		if n <= 0 {
			n = DefaultStepLimit
		}
		m.stepLimit = n
	}
}

// WithUnits makes the methods of units callable by INVOKESTATIC without
// going through the Env.
func WithUnits(units ...*bytecode.Unit) Option {
	return func(m *Machine) {
		for _, u := range units {
			m.units[u.Name] = u
		}
	}
}

// Machine interprets bytecode.  A Machine is not safe for concurrent use.
type Machine struct {
	env       Env
	units     map[string]*bytecode.Unit
	stepLimit int
	steps     int
}

// New returns a Machine delegating to env.
func New(env Env, opts ...Option) *Machine {
	m := &Machine{
		env:       env,
		units:     make(map[string]*bytecode.Unit),
		stepLimit: DefaultStepLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() int {
	return m.steps
}

// Call runs method of the interpreted unit named class.
func (m *Machine) Call(ctx context.Context, class string, method string, args []target.Value) (Outcome, error) {
	u, ok := m.units[class]
	if !ok {
		return internalError(class+"."+method, 0, "no such unit"), nil
	}
	fn, ok := u.Method(method)
	if !ok {
		return internalError(class+"."+method, 0, "no such method"), nil
	}
	return m.Run(ctx, class, fn, args)
}

// Run executes fn with the given arguments.  The only errors returned by Run
// are context errors, which are returned unmodified.  Everything else is
// reported as an Outcome.
func (m *Machine) Run(ctx context.Context, class string, fn *bytecode.Method, args []target.Value) (Outcome, error) {
	f := &frame{
		name:   class + "." + fn.Name,
		locals: make([]target.Value, max(fn.Locals, len(args))),
	}
	if len(args) != len(fn.Params) {
		return internalError(f.name, 0, fmt.Sprintf("expected %d arguments, got %d", len(fn.Params), len(args))), nil
	}
	copy(f.locals, args)
	code := fn.Code
	for pc := 0; ; {
		if pc < 0 || pc >= len(code) {
			return internalError(f.name, pc, "fell off the end of the method"), nil
		}
		m.steps++
		if m.steps > m.stepLimit {
			return Abnormal{Reason: fmt.Sprintf("step limit of %d instructions exceeded", m.stepLimit)}, nil
		}
		if m.steps%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		in := code[pc]
		f.pc = pc
		pc++
		switch in.Op {
		case bytecode.NOP:
		case bytecode.CONST:
			f.push(constValue(in.Const))
		case bytecode.LOAD:
			if in.Operand < 0 || in.Operand >= len(f.locals) {
				return f.broken("local %d out of range", in.Operand), nil
			}
			v := f.locals[in.Operand]
			if v == nil {
				return f.broken("local %d read before assignment", in.Operand), nil
			}
			f.push(v)
		case bytecode.STORE:
			if in.Operand < 0 || in.Operand >= len(f.locals) {
				return f.broken("local %d out of range", in.Operand), nil
			}
			v, ok := f.pop()
			if !ok {
				return f.underflow(), nil
			}
			f.locals[in.Operand] = v
		case bytecode.GETFIELD:
			obj, ok := f.pop()
			if !ok {
				return f.underflow(), nil
			}
			if out := m.push(f, m.env.GetField(ctx, obj, in.Name)); out != nil {
				return out, nil
			}
		case bytecode.PUTFIELD:
			v, ok1 := f.pop()
			obj, ok2 := f.pop()
			if !ok1 || !ok2 {
				return f.underflow(), nil
			}
			if out := m.discard(m.env.SetField(ctx, obj, in.Name, v)); out != nil {
				return out, nil
			}
		case bytecode.INVOKESTATIC:
			args, ok := f.popN(in.Operand)
			if !ok {
				return f.underflow(), nil
			}
			if _, local := m.units[in.Owner]; local {
				out, err := m.Call(ctx, in.Owner, in.Name, args)
				if err != nil {
					return nil, err
				}
				v, ok := out.(Value)
				if !ok {
					return out, nil
				}
				f.push(v.Value)
				break
			}
			if out := m.push(f, m.env.InvokeStatic(ctx, in.Owner, in.Name, args)); out != nil {
				return out, nil
			}
		case bytecode.INVOKEVIRTUAL:
			args, ok1 := f.popN(in.Operand)
			recv, ok2 := f.pop()
			if !ok1 || !ok2 {
				return f.underflow(), nil
			}
			if out := m.push(f, m.env.InvokeVirtual(ctx, recv, in.Name, args)); out != nil {
				return out, nil
			}
		case bytecode.NEW:
			args, ok := f.popN(in.Operand)
			if !ok {
				return f.underflow(), nil
			}
			if out := m.push(f, m.env.NewInstance(ctx, in.Owner, args)); out != nil {
				return out, nil
			}
		case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.REM,
			bytecode.LT, bytecode.LE, bytecode.GT, bytecode.GE, bytecode.EQ, bytecode.NE:
			b, ok1 := f.pop()
			a, ok2 := f.pop()
			if !ok1 || !ok2 {
				return f.underflow(), nil
			}
			if out := m.binary(ctx, f, in.Op, a, b); out != nil {
				return out, nil
			}
		case bytecode.NEG:
			a, ok := f.pop()
			if !ok {
				return f.underflow(), nil
			}
			switch a := a.(type) {
			case target.Int:
				f.push(-a)
			case target.Double:
				f.push(-a)
			default:
				return m.throwNew(ctx, ClassCastException, "%s cannot be negated", a.Type()), nil
			}
		case bytecode.NOT:
			a, ok := f.pop()
			if !ok {
				return f.underflow(), nil
			}
			b, isBool := a.(target.Bool)
			if !isBool {
				return m.throwNew(ctx, ClassCastException, "%s cannot be cast to Boolean", a.Type()), nil
			}
			f.push(!b)
		case bytecode.JUMP:
			pc = in.Operand
		case bytecode.JUMPIFNOT:
			a, ok := f.pop()
			if !ok {
				return f.underflow(), nil
			}
			b, isBool := a.(target.Bool)
			if !isBool {
				return m.throwNew(ctx, ClassCastException, "%s cannot be cast to Boolean", a.Type()), nil
			}
			if !b {
				pc = in.Operand
			}
		case bytecode.POP:
			if _, ok := f.pop(); !ok {
				return f.underflow(), nil
			}
		case bytecode.DUP:
			v, ok := f.peek()
			if !ok {
				return f.underflow(), nil
			}
			f.push(v)
		case bytecode.BOX:
			v, ok := f.pop()
			if !ok {
				return f.underflow(), nil
			}
			if out := m.push(f, m.env.Box(ctx, v)); out != nil {
				return out, nil
			}
		case bytecode.THROW:
			ex, ok := f.pop()
			if !ok {
				return f.underflow(), nil
			}
			if target.IsNull(ex) {
				return m.throwNew(ctx, NullPointerException, "throw with null exception"), nil
			}
			return Thrown{Exception: ex, Kind: FromEvaluatedCode}, nil
		case bytecode.RETURN:
			v, ok := f.pop()
			if !ok {
				return f.underflow(), nil
			}
			return Value{Value: v}, nil
		default:
			return f.broken("invalid opcode %v", in.Op), nil
		}
	}
}

// push pushes the value of a successful result.  For other results push
// returns the outcome that terminates the method.
func (m *Machine) push(f *frame, r target.Result) Outcome {
	switch r := r.(type) {
	case target.Returned:
		if r.Value == nil {
			f.push(target.Void{})
		} else {
			f.push(r.Value)
		}
		return nil
	default:
		return m.discard(r)
	}
}

func (m *Machine) discard(r target.Result) Outcome {
	switch r := r.(type) {
	case target.Returned:
		return nil
	case target.Threw:
		return Thrown{Exception: r.Exception, Kind: FromEvaluatedCode}
	case target.VMFailure:
		return Abnormal{Reason: r.Reason}
	default:
		return Abnormal{Reason: fmt.Sprintf("unexpected result %T", r)}
	}
}

// throwNew constructs an exception in the debuggee and throws it.
func (m *Machine) throwNew(ctx context.Context, class string, format string, v ...interface{}) Outcome {
	msg := target.String(fmt.Sprintf(format, v...))
	switch r := m.env.NewInstance(ctx, class, []target.Value{msg}).(type) {
	case target.Returned:
		return Thrown{Exception: r.Value, Kind: FromEvaluatedCode}
	default:
		return m.discard(r)
	}
}

func (m *Machine) binary(ctx context.Context, f *frame, op bytecode.Opcode, a, b target.Value) Outcome {
	switch op {
	case bytecode.EQ:
		f.push(target.Bool(Equal(a, b)))
		return nil
	case bytecode.NE:
		f.push(target.Bool(!Equal(a, b)))
		return nil
	}
	if s, ok := a.(target.String); ok {
		switch op {
		case bytecode.ADD:
			return m.push(f, m.env.InvokeVirtual(ctx, s, "plus", []target.Value{b}))
		case bytecode.LT, bytecode.LE, bytecode.GT, bytecode.GE:
			t, ok := b.(target.String)
			if !ok {
				return m.throwNew(ctx, ClassCastException, "%s cannot be cast to String", b.Type())
			}
			f.push(target.Bool(compare(op, strings.Compare(string(s), string(t)))))
			return nil
		}
	}
	x, xint, ok1 := numeric(a)
	y, yint, ok2 := numeric(b)
	if !ok1 || !ok2 {
		return m.throwNew(ctx, ClassCastException, "operator %v is not applicable to %s and %s", op, a.Type(), b.Type())
	}
	if xint && yint {
		i, j := a.(target.Int), b.(target.Int)
		switch op {
		case bytecode.ADD:
			f.push(i + j)
		case bytecode.SUB:
			f.push(i - j)
		case bytecode.MUL:
			f.push(i * j)
		case bytecode.DIV, bytecode.REM:
			if j == 0 {
				return m.throwNew(ctx, ArithmeticException, "/ by zero")
			}
			if op == bytecode.DIV {
				f.push(i / j)
			} else {
				f.push(i % j)
			}
		default:
			c := 0
			if i < j {
				c = -1
			} else if i > j {
				c = 1
			}
			f.push(target.Bool(compare(op, c)))
		}
		return nil
	}
	switch op {
	case bytecode.ADD:
		f.push(target.Double(x + y))
	case bytecode.SUB:
		f.push(target.Double(x - y))
	case bytecode.MUL:
		f.push(target.Double(x * y))
	case bytecode.DIV:
		f.push(target.Double(x / y))
	case bytecode.REM:
		f.push(target.Double(math.Mod(x, y)))
	default:
		c := 0
		if x < y {
			c = -1
		} else if x > y {
			c = 1
		}
		f.push(target.Bool(compare(op, c)))
	}
	return nil
}

func compare(op bytecode.Opcode, c int) bool {
	switch op {
	case bytecode.LT:
		return c < 0
	case bytecode.LE:
		return c <= 0
	case bytecode.GT:
		return c > 0
	default:
		return c >= 0
	}
}

func numeric(v target.Value) (float64, bool, bool) {
	switch v := v.(type) {
	case target.Int:
		return float64(v), true, true
	case target.Double:
		return float64(v), false, true
	}
	return 0, false, false
}

// Equal implements `==` on debuggee values.  Numbers compare by value,
// strings by content, and objects by identity.
func Equal(a, b target.Value) bool {
	if target.IsNull(a) || target.IsNull(b) {
		return target.IsNull(a) && target.IsNull(b)
	}
	x, _, ok1 := numeric(a)
	y, _, ok2 := numeric(b)
	if ok1 && ok2 {
		return x == y
	}
	return a == b
}

func constValue(c bytecode.Const) target.Value {
	switch c.Kind {
	case bytecode.ConstNull:
		return target.Null{}
	case bytecode.ConstInt:
		return target.Int(c.Int)
	case bytecode.ConstDouble:
		return target.Double(c.Double)
	case bytecode.ConstBool:
		return target.Bool(c.Int != 0)
	case bytecode.ConstString:
		return target.String(c.Str)
	default:
		return target.Void{}
	}
}

func internalError(method string, pc int, msg string) Outcome {
	return Thrown{Kind: BrokenCode, Err: &InternalError{Method: method, PC: pc, Msg: msg}}
}

type frame struct {
	name   string
	pc     int
	locals []target.Value
	stack  []target.Value
}

func (f *frame) push(v target.Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() (target.Value, bool) {
	if len(f.stack) == 0 {
		return nil, false
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, true
}

func (f *frame) peek() (target.Value, bool) {
	if len(f.stack) == 0 {
		return nil, false
	}
	return f.stack[len(f.stack)-1], true
}

func (f *frame) popN(n int) ([]target.Value, bool) {
	if n < 0 || n > len(f.stack) {
		return nil, false
	}
	vals := make([]target.Value, n)
	copy(vals, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vals, true
}

func (f *frame) broken(format string, v ...interface{}) Outcome {
	return internalError(f.name, f.pc, fmt.Sprintf(format, v...))
}

func (f *frame) underflow() Outcome {
	return f.broken("operand stack underflow")
}
