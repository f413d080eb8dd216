// Copyright © 2018 The ELPS authors

// Package compiler turns analyzed fragments into bytecode units and the
// manifest of parameters the units expect.
package compiler

import (
	"fmt"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/bytecode"
	"github.com/luthersystems/fragmenteval/parser/token"
	"github.com/luthersystems/fragmenteval/target"
)

// Names of the generated main unit and its entry point.
const (
	MainClass  = "Generated_for_debugger_class"
	MainMethod = "generated_for_debugger_fun"
)

// Ref cell classes standing in for captured locals the fragment assigns.
const (
	IntRef     = "kotlin.jvm.internal.Ref$IntRef"
	DoubleRef  = "kotlin.jvm.internal.Ref$DoubleRef"
	BooleanRef = "kotlin.jvm.internal.Ref$BooleanRef"
	ObjectRef  = "kotlin.jvm.internal.Ref$ObjectRef"
	// RefElement is the field of a ref cell holding the value.
	RefElement = "element"
)

// RefClass returns the ref cell class for values of static type typ.
func RefClass(typ string) string {
	switch typ {
	case target.TypeInt:
		return IntRef
	case target.TypeDouble:
		return DoubleRef
	case target.TypeBoolean:
		return BooleanRef
	default:
		return ObjectRef
	}
}

// ParamKind classifies parameters of the main method.
type ParamKind int

const (
	Ordinary ParamKind = iota
	FieldBacked
	CoroutineContext
	LocalFunction
)

func (k ParamKind) String() string {
	switch k {
	case Ordinary:
		return "ordinary"
	case FieldBacked:
		return "field-backed"
	case CoroutineContext:
		return "coroutine-context"
	case LocalFunction:
		return "local-function"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Parameter describes an argument of the main method.  It holds no
// reference to a live process.
type Parameter struct {
	Kind ParamKind
	// Name is the declared name of the parameter.  Local functions sharing
	// a name are suffixed with $1, $2, ...
	Name string
	// Lookup is the name under which the value is found at runtime: the
	// frame local, the backing property, the local function variable or
	// the label.
	Lookup string
	// Origin is the kind of symbol the parameter stands for.
	Origin analysis.SymbolKind
	// Type is the declared type of the parameter in the main signature.
	Type string
	// ValueType is the static type of the value.  It differs from Type when
	// Ref is set.
	ValueType string
	// Ref is set when the value is passed in a ref cell so that assignments
	// made by the fragment can be written back.
	Ref   bool
	Depth int
	Index int
}

func (p *Parameter) String() string {
	return fmt.Sprintf("%d:%s %s: %s", p.Index, p.Kind, p.Name, p.Type)
}

// CompiledData is the result of compiling a fragment.
type CompiledData struct {
	// Units holds the main unit first, then one unit per inline function.
	Units      []*bytecode.Unit
	MainClass  string
	MainMethod string
	// Signature lists the parameter types of the entry point.
	Signature  []string
	Parameters []*Parameter
	// CrossingBoundary names the parameters declared outside the scope
	// immediately enclosing the breakpoint.
	CrossingBoundary []string
	ResultType       string
}

// Main returns the main unit.
func (d *CompiledData) Main() *bytecode.Unit {
	return d.Units[0]
}

// Aux returns the auxiliary units.
func (d *CompiledData) Aux() []*bytecode.Unit {
	return d.Units[1:]
}

// Crossing reports whether p crosses a capture boundary.
func (d *CompiledData) Crossing(p *Parameter) bool {
	for _, name := range d.CrossingBoundary {
		if name == p.Name {
			return true
		}
	}
	return false
}

// ClassFiles encodes the units for definition in a target process.
func (d *CompiledData) ClassFiles() []target.ClassFile {
	files := make([]target.ClassFile, len(d.Units))
	for i, u := range d.Units {
		files[i] = target.ClassFile{Name: u.Name, Bytes: bytecode.Marshal(u)}
	}
	return files
}

// BackendError is a compilation failure.
type BackendError struct {
	Source *token.Location
	Msg    string
}

func backendErrorf(loc *token.Location, format string, v ...interface{}) *BackendError {
	return &BackendError{Source: loc, Msg: fmt.Sprintf(format, v...)}
}

func (err *BackendError) Error() string {
	if err.Source == nil {
		return err.Msg
	}
	return fmt.Sprintf("%s: %s", err.Source, err.Msg)
}
