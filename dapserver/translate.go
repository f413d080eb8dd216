// Copyright © 2018 The ELPS authors

package dapserver

import (
	"sort"
	"strconv"

	"github.com/google/go-dap"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/luthersystems/fragmenteval/target/sim"
)

// varRef is the target of a DAP variables reference: the variables of a
// frame or the fields of an object.
type varRef struct {
	frame  int
	object target.Object
}

// formatValue renders v for display in a DAP client.
func formatValue(p *sim.Process, v target.Value) string {
	if s, ok := v.(target.String); ok {
		return strconv.Quote(string(s))
	}
	return p.Render(v)
}

func valueType(v target.Value) string {
	if v == nil {
		return target.TypeNull
	}
	return v.Type()
}

// translateFrame converts a frame of thread into a DAP stack frame.
func translateFrame(f *sim.Frame) dap.StackFrame {
	file, line := f.Source()
	sf := dap.StackFrame{Id: f.ID(), Name: f.Method(), Line: line}
	if file != "" {
		sf.Source = &dap.Source{Name: file, Path: file}
	}
	return sf
}

// frameVariables lists the variables visible in f: locals in declaration
// order, spilled coroutine variables and the receiver.
func (h *handler) frameVariables(f *sim.Frame) []dap.Variable {
	var vars []dap.Variable
	for _, l := range f.LocalSlots() {
		vars = append(vars, h.variable(l.Name, l.Value))
	}
	spilled := f.Spilled()
	for _, name := range f.SpilledNames() {
		vars = append(vars, h.variable(name, spilled[name]))
	}
	if this := f.This(); this != nil {
		vars = append(vars, h.variable("this", this))
	}
	return vars
}

// objectVariables lists the fields of o sorted by name.
func (h *handler) objectVariables(o target.Object) []dap.Variable {
	fields := h.server.proc.Fields(o)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	vars := make([]dap.Variable, 0, len(names))
	for _, name := range names {
		vars = append(vars, h.variable(name, fields[name]))
	}
	return vars
}

func (h *handler) variable(name string, v target.Value) dap.Variable {
	return dap.Variable{
		Name:               name,
		Value:              formatValue(h.server.proc, v),
		Type:               valueType(v),
		EvaluateName:       name,
		VariablesReference: h.objectRef(v),
	}
}
