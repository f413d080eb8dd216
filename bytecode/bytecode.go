// Copyright © 2018 The ELPS authors

// Package bytecode defines the class format produced by the fragment
// compiler.  A Unit is one class.  Its methods hold instructions for a
// simple stack machine.
package bytecode

import (
	"fmt"
	"strconv"
)

// Opcode is a machine instruction.
type Opcode uint8

// Opcodes.  Operand and the Owner and Name fields of an instruction are
// used as described for each opcode.
const (
	NOP Opcode = iota
	// CONST pushes Const.
	CONST
	// LOAD pushes local Operand.
	LOAD
	// STORE pops into local Operand.
	STORE
	// GETFIELD pops an object and pushes its field Name.
	GETFIELD
	// PUTFIELD pops a value and an object and sets field Name.
	PUTFIELD
	// INVOKESTATIC pops Operand arguments and calls Owner.Name.
	INVOKESTATIC
	// INVOKEVIRTUAL pops Operand arguments and a receiver and calls Name.
	INVOKEVIRTUAL
	// NEW pops Operand arguments and constructs an instance of Owner.
	NEW
	ADD
	SUB
	MUL
	DIV
	REM
	NEG
	EQ
	NE
	LT
	LE
	GT
	GE
	NOT
	// JUMP continues at instruction Operand.
	JUMP
	// JUMPIFNOT pops a boolean and continues at Operand when it is false.
	JUMPIFNOT
	POP
	DUP
	// BOX converts a primitive on top of the stack to an object.
	BOX
	// THROW pops an exception and throws it.
	THROW
	// RETURN pops the result and returns.
	RETURN

	numOpcodes
)

var opcodeStrings = [numOpcodes]string{
	NOP:           "nop",
	CONST:         "const",
	LOAD:          "load",
	STORE:         "store",
	GETFIELD:      "getfield",
	PUTFIELD:      "putfield",
	INVOKESTATIC:  "invokestatic",
	INVOKEVIRTUAL: "invokevirtual",
	NEW:           "new",
	ADD:           "add",
	SUB:           "sub",
	MUL:           "mul",
	DIV:           "div",
	REM:           "rem",
	NEG:           "neg",
	EQ:            "eq",
	NE:            "ne",
	LT:            "lt",
	LE:            "le",
	GT:            "gt",
	GE:            "ge",
	NOT:           "not",
	JUMP:          "jump",
	JUMPIFNOT:     "jumpifnot",
	POP:           "pop",
	DUP:           "dup",
	BOX:           "box",
	THROW:         "throw",
	RETURN:        "return",
}

func (op Opcode) String() string {
	if op >= numOpcodes {
		return "op(" + strconv.Itoa(int(op)) + ")"
	}
	return opcodeStrings[op]
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// ConstKind is the type of a constant.
type ConstKind uint8

const (
	ConstUnit ConstKind = iota
	ConstNull
	ConstInt
	ConstDouble
	ConstBool
	ConstString
)

// Const is a constant operand.
type Const struct {
	Kind   ConstKind
	Int    int64
	Double float64
	Str    string
}

// Int returns an integer constant.  Booleans are stored as 0 or 1.
func Int(v int64) Const { return Const{Kind: ConstInt, Int: v} }

// Double returns a floating point constant.
func Double(v float64) Const { return Const{Kind: ConstDouble, Double: v} }

// String returns a string constant.
func String(v string) Const { return Const{Kind: ConstString, Str: v} }

// Bool returns a boolean constant.
func Bool(v bool) Const {
	c := Const{Kind: ConstBool}
	if v {
		c.Int = 1
	}
	return c
}

// Null returns the null constant.
func Null() Const { return Const{Kind: ConstNull} }

// UnitConst returns the unit constant.
func UnitConst() Const { return Const{Kind: ConstUnit} }

func (c Const) String() string {
	switch c.Kind {
	case ConstNull:
		return "null"
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstDouble:
		return strconv.FormatFloat(c.Double, 'g', -1, 64) + "d"
	case ConstBool:
		return strconv.FormatBool(c.Int != 0)
	case ConstString:
		return strconv.Quote(c.Str)
	default:
		return "unit"
	}
}

// Instr is a single instruction.
type Instr struct {
	Op      Opcode
	Operand int
	Const   Const
	Owner   string
	Name    string
}

func (in Instr) String() string {
	switch in.Op {
	case CONST:
		return fmt.Sprintf("%s %v", in.Op, in.Const)
	case LOAD, STORE, JUMP, JUMPIFNOT:
		return fmt.Sprintf("%s %d", in.Op, in.Operand)
	case GETFIELD, PUTFIELD:
		if in.Owner == "" {
			return fmt.Sprintf("%s %s", in.Op, in.Name)
		}
		return fmt.Sprintf("%s %s.%s", in.Op, in.Owner, in.Name)
	case INVOKESTATIC:
		return fmt.Sprintf("%s %s.%s/%d", in.Op, in.Owner, in.Name, in.Operand)
	case INVOKEVIRTUAL:
		if in.Owner == "" {
			return fmt.Sprintf("%s %s/%d", in.Op, in.Name, in.Operand)
		}
		return fmt.Sprintf("%s %s.%s/%d", in.Op, in.Owner, in.Name, in.Operand)
	case NEW:
		return fmt.Sprintf("%s %s/%d", in.Op, in.Owner, in.Operand)
	default:
		return in.Op.String()
	}
}

// Method is a method of a unit.  Parameters occupy the first local slots.
type Method struct {
	Name   string
	Params []string
	Result string
	Locals int
	Code   []Instr
}

// Unit is a generated class.
type Unit struct {
	Name    string
	Methods []*Method
}

// Method returns the method named name.
func (u *Unit) Method(name string) (*Method, bool) {
	for _, m := range u.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// References returns the classes referenced by instructions of the unit in
// order of first reference.
func (u *Unit) References() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, m := range u.Methods {
		for _, in := range m.Code {
			switch in.Op {
			case INVOKESTATIC, NEW, GETFIELD, PUTFIELD, INVOKEVIRTUAL:
			default:
				continue
			}
			if in.Owner == "" || seen[in.Owner] {
				continue
			}
			seen[in.Owner] = true
			refs = append(refs, in.Owner)
		}
	}
	return refs
}
