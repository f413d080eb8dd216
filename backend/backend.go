// Copyright © 2018 The ELPS authors

// Package backend runs compiled fragments in a suspended debuggee, either by
// defining the generated classes in the debuggee or by interpreting them in
// the debugger.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/sirupsen/logrus"
)

// ErrInjectionFailed is wrapped by errors of the injection strategy which
// are recovered by falling back to interpretation.
var ErrInjectionFailed = errors.New("injection failed")

// Strategy executes the main unit of compiled data with bound arguments.
type Strategy interface {
	Name() status.Backend
	Run(ctx context.Context, ec *target.ExecutionContext, data *compiler.CompiledData, args []target.Value) (target.Value, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger of the runner.
func WithLogger(log *logrus.Entry) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithInjection enables or disables the injection strategy.  It is enabled
// by default.
func WithInjection(enabled bool) Option {
	return func(r *Runner) {
		r.injection = enabled
	}
}

// WithStepLimit bounds the instructions executed by interpretation.
func WithStepLimit(n int) Option {
	return func(r *Runner) {
		r.stepLimit = n
	}
}

// Runner chooses a strategy for each evaluation and falls back from
// injection to interpretation.
type Runner struct {
	log       *logrus.Entry
	injection bool
	stepLimit int
	inject    Strategy
}

// NewRunner returns a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{injection: true, inject: &Injection{}}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return r
}

// Injection returns the injection strategy of the runner.
func (r *Runner) Injection() *Injection {
	return &Injection{}
}

// Interpretation returns the interpretation strategy of the runner.
func (r *Runner) Interpretation() *Interpretation {
	return &Interpretation{StepLimit: r.stepLimit}
}

// Prepare loads every class referenced by the auxiliary units of data and
// the class of every parameter.  A class the debuggee cannot load fails
// with ClassNotFound.
func (r *Runner) Prepare(ctx context.Context, ec *target.ExecutionContext, data *compiler.CompiledData) error {
	for _, class := range RequiredClasses(data) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ec.Process.FindClass(class) {
			continue
		}
		switch res := ec.Process.LoadClass(ctx, ec.Thread, class).(type) {
		case target.Returned:
		case target.Threw:
			return &status.Error{
				Kind:      status.ClassNotFound,
				Msg:       fmt.Sprintf("cannot load class %s", class),
				Exception: res.Exception,
			}
		case target.VMFailure:
			return status.Wrap(status.ClassNotFound, res, "cannot load class %s", class)
		}
	}
	return nil
}

// RequiredClasses returns the debuggee classes data depends on, in order of
// first reference.
func RequiredClasses(data *compiler.CompiledData) []string {
	seen := make(map[string]bool)
	var classes []string
	add := func(name string) {
		name = loadableName(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		classes = append(classes, name)
	}
	for _, u := range data.Aux() {
		for _, ref := range u.References() {
			add(ref)
		}
	}
	for _, p := range data.Parameters {
		add(p.Type)
	}
	return classes
}

// loadableName returns the binary name of a class type, or "" for types that
// need no loading: primitives, unqualified names and generated units.
func loadableName(typ string) string {
	typ = strings.TrimSuffix(typ, "?")
	if i := strings.IndexByte(typ, '<'); i >= 0 {
		typ = typ[:i]
	}
	switch {
	case !strings.Contains(typ, "."):
		return ""
	case generated(typ):
		return ""
	}
	return typ
}

// Execute runs data with args and records the strategy that produced the
// outcome in st.  Injection failures of the debuggee are recovered by
// interpreting the fragment, after marking CompilingEvaluatorFailed.
func (r *Runner) Execute(ctx context.Context, st *status.Status, ec *target.ExecutionContext, data *compiler.CompiledData, args []target.Value) (v target.Value, err error) {
	if !r.injection || !ec.Process.CanDefineClasses() {
		return r.run(ctx, st, r.Interpretation(), ec, data, args)
	}
	cells := saveCells(ctx, ec, data, args)
	v, err = r.run(ctx, st, r.inject, ec, data, args)
	if !errors.Is(err, ErrInjectionFailed) {
		return v, err
	}
	r.log.WithError(err).WithField("method", ec.Frame.Method()).Warn("falling back to interpretation")
	st.Mark(status.CompilingEvaluatorFailed)
	if err := cells.restore(ctx, ec); err != nil {
		return nil, err
	}
	return r.run(ctx, st, r.Interpretation(), ec, data, args)
}

func (r *Runner) run(ctx context.Context, st *status.Status, s Strategy, ec *target.ExecutionContext, data *compiler.CompiledData, args []target.Value) (v target.Value, err error) {
	st.SetBackend(s.Name())
	defer func() {
		if p := recover(); p != nil {
			r.log.WithField("panic", p).Error("backend panic")
			if s.Name() == status.BackendInjection {
				v, err = nil, fmt.Errorf("%w: %v", ErrInjectionFailed, p)
				return
			}
			v, err = nil, status.Errorf(status.Eval4JUnknownException, "%s failed: %v", s.Name(), p)
		}
	}()
	return s.Run(ctx, ec, data, args)
}

// cellValue is the content of a ref cell argument before a run.
type cellValue struct {
	cell  target.Value
	value target.Value
}

type cellValues []cellValue

// saveCells records the content of every ref cell passed in args.  Cells
// whose content cannot be read are skipped.
func saveCells(ctx context.Context, ec *target.ExecutionContext, data *compiler.CompiledData, args []target.Value) cellValues {
	var saved cellValues
	for i, p := range data.Parameters {
		if !p.Ref || i >= len(args) {
			continue
		}
		if res, ok := ec.Process.GetField(ctx, ec.Thread, args[i], compiler.RefElement).(target.Returned); ok {
			saved = append(saved, cellValue{cell: args[i], value: res.Value})
		}
	}
	return saved
}

// restore puts back the saved content of each cell, undoing assignments a
// failed run made before failing.
func (cells cellValues) restore(ctx context.Context, ec *target.ExecutionContext) error {
	for _, c := range cells {
		switch res := ec.Process.SetField(ctx, ec.Thread, c.cell, compiler.RefElement, c.value).(type) {
		case target.Threw:
			return &status.Error{
				Kind:      status.GenericException,
				Msg:       "cannot reset captured variable before interpretation",
				Exception: res.Exception,
			}
		case target.VMFailure:
			return status.Wrap(status.GenericException, res, "cannot reset captured variable before interpretation")
		}
	}
	return nil
}

// thrown converts an exception of evaluated code to a user-facing error.
func thrown(ctx context.Context, ec *target.ExecutionContext, ex target.Value) error {
	return &status.Error{
		Kind:      status.ExceptionFromEvaluatedCode,
		Msg:       describe(ctx, ec, ex),
		Exception: ex,
	}
}

// describe renders an exception as the debuggee would, falling back to its
// class name when toString cannot be called.
func describe(ctx context.Context, ec *target.ExecutionContext, ex target.Value) string {
	if ex == nil {
		return "exception"
	}
	if r, ok := ec.Process.InvokeVirtual(ctx, ec.Thread, ex, "toString", nil).(target.Returned); ok {
		if s, ok := r.Value.(target.String); ok {
			return string(s)
		}
	}
	return ex.Type()
}

// generated reports whether class is produced by the compiler.
func generated(class string) bool {
	return strings.HasPrefix(class, compiler.MainClass) || strings.HasPrefix(class, analysis.InlineUnitPrefix)
}
