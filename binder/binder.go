// Copyright © 2018 The ELPS authors

// Package binder finds the values of the parameters of a compiled fragment
// in a suspended frame.
package binder

import (
	"context"
	"fmt"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/sirupsen/logrus"
)

// Frame locals holding the continuation of a suspended coroutine, in order
// of preference.
var continuationLocals = []string{analysis.CompletionName, "$continuation"}

// Binding is a parameter bound to a value found in the debuggee.
type Binding struct {
	Param *compiler.Parameter
	// Value is the argument passed to the main method.
	Value target.Value
	// Cell is the ref cell passed for a Ref parameter.  It is nil
	// otherwise.
	Cell target.Value
	// Source names the local the value was read from, which is where a
	// mutated value is written back.  Spilled is set when the local lives
	// in the coroutine continuation.
	Source  string
	Spilled bool
}

// Ref reports whether the binding passes a ref cell.
func (b *Binding) Ref() bool {
	return b.Cell != nil
}

// Binder resolves parameters against an execution context.
type Binder struct {
	Log *logrus.Entry
}

// New returns a Binder logging to log, or to the standard logger when log is
// nil.
func New(log *logrus.Entry) *Binder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Binder{Log: log}
}

// found is a value located in the debuggee.
type found struct {
	value   target.Value
	source  string
	spilled bool
}

// Bind binds every parameter of data in declared order.  The first failure
// is returned as a *status.Error.
func (b *Binder) Bind(ctx context.Context, ec *target.ExecutionContext, data *compiler.CompiledData) ([]*Binding, error) {
	locals, err := ec.Frame.Locals()
	if err != nil {
		return nil, status.Wrap(status.GenericException, err, "cannot read locals of %s", ec.Frame.Method())
	}
	var bindings []*Binding
	for _, p := range data.Parameters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, ok := b.find(ctx, ec, locals, p)
		if !ok {
			return nil, b.diagnose(ec, data, p)
		}
		binding := &Binding{Param: p, Value: f.value, Source: f.source, Spilled: f.spilled}
		if p.Ref {
			if err := b.wrap(ctx, ec, binding); err != nil {
				return nil, err
			}
		}
		b.Log.WithFields(logrus.Fields{
			"param": p.Name,
			"kind":  p.Kind.String(),
			"ref":   binding.Ref(),
		}).Debug("bound parameter")
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

func (b *Binder) find(ctx context.Context, ec *target.ExecutionContext, locals map[string]target.Value, p *compiler.Parameter) (found, bool) {
	switch p.Kind {
	case compiler.CoroutineContext:
		for _, name := range continuationLocals {
			if v, ok := locals[name]; ok && !target.IsNull(v) {
				return found{value: v, source: name}, true
			}
		}
		return found{}, false
	case compiler.LocalFunction:
		v, ok := locals[p.Lookup]
		return found{value: v, source: p.Lookup}, ok && !target.IsNull(v)
	case compiler.FieldBacked:
		this := ec.Frame.This()
		if target.IsNull(this) {
			return found{}, false
		}
		r, ok := ec.Process.GetField(ctx, ec.Thread, this, p.Lookup).(target.Returned)
		if !ok || r.Value == nil {
			return found{}, false
		}
		return found{value: r.Value}, b.matches(ec, p, r.Value)
	}
	switch p.Origin {
	case analysis.SymThis:
		this := ec.Frame.This()
		return found{value: this}, !target.IsNull(this)
	case analysis.SymLabel:
		v, ok := ec.Labels[p.Lookup]
		return found{value: v}, ok && v != nil
	}
	if v, ok := locals[p.Lookup]; ok && b.matches(ec, p, v) {
		return found{value: v, source: p.Lookup}, true
	}
	if v, ok := ec.Frame.Spilled()[p.Lookup]; ok && b.matches(ec, p, v) {
		return found{value: v, source: p.Lookup, spilled: true}, true
	}
	// Lambdas hold captured variables in fields of their receiver.
	if this := ec.Frame.This(); !target.IsNull(this) {
		r, ok := ec.Process.GetField(ctx, ec.Thread, this, "$"+p.Lookup).(target.Returned)
		if ok && r.Value != nil && b.matches(ec, p, r.Value) {
			return found{value: r.Value}, true
		}
	}
	return found{}, false
}

// matches reports whether v structurally matches the value type of p.  A
// ref cell matches when its class is the cell class of p.
func (b *Binder) matches(ec *target.ExecutionContext, p *compiler.Parameter, v target.Value) bool {
	if isCell(v, p) {
		return true
	}
	return target.Assignable(ec.Process, p.ValueType, v)
}

func isCell(v target.Value, p *compiler.Parameter) bool {
	obj, ok := v.(target.Object)
	return ok && p.Ref && obj.Class == p.Type
}

// wrap passes the value of binding in a ref cell.  A value that already is
// a cell is shared with the frame.
func (b *Binder) wrap(ctx context.Context, ec *target.ExecutionContext, binding *Binding) error {
	p := binding.Param
	if isCell(binding.Value, p) {
		binding.Cell = binding.Value
		binding.Source = ""
		return nil
	}
	var cell target.Value
	switch r := ec.Process.NewInstance(ctx, ec.Thread, p.Type, nil).(type) {
	case target.Returned:
		cell = r.Value
	case target.Threw:
		return status.Errorf(status.GenericException, "cannot create %s for %s: %v", p.Type, p.Name, r.Exception)
	case target.VMFailure:
		return status.Wrap(status.GenericException, r, "cannot create %s for %s", p.Type, p.Name)
	}
	switch r := ec.Process.SetField(ctx, ec.Thread, cell, compiler.RefElement, binding.Value).(type) {
	case target.Threw:
		return status.Errorf(status.GenericException, "cannot initialize %s for %s: %v", p.Type, p.Name, r.Exception)
	case target.VMFailure:
		return status.Wrap(status.GenericException, r, "cannot initialize %s for %s", p.Type, p.Name)
	}
	binding.Cell = cell
	binding.Value = cell
	return nil
}

// diagnose explains why p could not be found.  The checks run in a fixed
// priority order.
func (b *Binder) diagnose(ec *target.ExecutionContext, data *compiler.CompiledData, p *compiler.Parameter) error {
	flags := ec.Frame.Flags()
	switch {
	case p.Kind == compiler.CoroutineContext:
		return status.Errorf(status.CoroutineContextUnavailable,
			"Cannot find the coroutine context for '%s': the frame is not in a coroutine", p.Name)
	case data.Crossing(p):
		return status.Errorf(status.ParameterNotCaptured,
			"'%s' is not captured by the current scope", p.Name)
	case p.Kind == compiler.FieldBacked:
		return status.Errorf(status.BackingFieldNotFound,
			"Cannot find the backing field of '%s'", p.Lookup)
	case p.Kind == compiler.Ordinary && flags.DefaultMethodTrampoline:
		return status.Errorf(status.InsideDefaultMethod,
			"Cannot find '%s' inside a default interface method", p.Name)
	case p.Kind == compiler.Ordinary && flags.CoroutineResume && flags.LocalsOptimized:
		return status.Errorf(status.OptimisedVariable,
			"'%s' was optimised out of the coroutine frame", p.Name)
	}
	return status.Errorf(status.CannotFindVariable, "Cannot find local variable '%s' with type %s", p.Name, displayType(p))
}

func displayType(p *compiler.Parameter) string {
	if p.ValueType == "" {
		return target.TypeAny
	}
	return p.ValueType
}

// String describes b for logs.
func (b *Binding) String() string {
	return fmt.Sprintf("%s=%v", b.Param.Name, b.Value)
}
