// Copyright © 2018 The ELPS authors

package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/interp"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/luthersystems/fragmenteval/target/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T, opts ...sim.Option) (*sim.Process, *target.ExecutionContext) {
	t.Helper()
	p := sim.New("backend", opts...)
	p.AddClass(&sim.Class{Name: "app.Point", Fields: []sim.Field{{Name: "x", Type: target.TypeInt}}})
	f := p.NewFrame(sim.FrameConfig{Method: "app.MainKt.main", File: "Main.kt", Line: 3})
	th := sim.NewThread(1, "main", true, f)
	p.AddThread(th)
	return p, &target.ExecutionContext{Process: p, Thread: th, Frame: f}
}

func compile(t *testing.T, text string, scope *fragment.Context) *compiler.CompiledData {
	t.Helper()
	res, err := analysis.NewAnalyzer(nil).Analyze(context.Background(), fragment.New(text, scope))
	require.NoError(t, err)
	data, err := compiler.Compile(res)
	require.NoError(t, err)
	return data
}

func TestStrategies(t *testing.T) {
	data := compile(t, "1 + 2 * 3", nil)
	for _, s := range []Strategy{&Injection{}, &Interpretation{}} {
		_, ec := newContext(t)
		v, err := s.Run(context.Background(), ec, data, nil)
		require.NoError(t, err, s.Name())
		assert.Equal(t, target.Int(7), v, s.Name())
	}
}

func TestStrategiesThrow(t *testing.T) {
	data := compile(t, `error("boom")`, nil)
	for _, s := range []Strategy{&Injection{}, &Interpretation{}} {
		_, ec := newContext(t)
		_, err := s.Run(context.Background(), ec, data, nil)
		require.Error(t, err)
		var serr *status.Error
		require.True(t, errors.As(err, &serr), "%v", err)
		assert.Equal(t, status.ExceptionFromEvaluatedCode, serr.Kind)
		assert.Equal(t, sim.IllegalStateException, serr.Exception.Type())
		assert.Equal(t, "java.lang.IllegalStateException: boom", serr.Msg)
	}
}

func TestExecute(t *testing.T) {
	data := compile(t, "10 / 4", nil)
	p, ec := newContext(t)
	st := status.New("kotlin")
	v, err := NewRunner().Execute(context.Background(), st, ec, data, nil)
	require.NoError(t, err)
	assert.Equal(t, target.Int(2), v)
	assert.Equal(t, status.BackendInjection, st.Backend())
	assert.False(t, st.Marked(status.CompilingEvaluatorFailed))
	assert.Equal(t, 1, p.Definitions())
}

func TestExecuteFallback(t *testing.T) {
	data := compile(t, "1 + 1", nil)
	p, ec := newContext(t)
	p.FailDefinitions("class redefinition is not allowed")
	st := status.New("kotlin")
	v, err := NewRunner().Execute(context.Background(), st, ec, data, nil)
	require.NoError(t, err)
	assert.Equal(t, target.Int(2), v)
	assert.Equal(t, status.BackendInterpretation, st.Backend())
	assert.True(t, st.Marked(status.CompilingEvaluatorFailed))
	assert.Equal(t, status.Success, st.Kind())
}

func TestExecuteWithoutInjection(t *testing.T) {
	data := compile(t, "1 + 1", nil)
	for _, test := range []struct {
		name   string
		opts   []sim.Option
		runner *Runner
	}{
		{"unsupported", []sim.Option{sim.WithoutClassDefinition()}, NewRunner()},
		{"disabled", nil, NewRunner(WithInjection(false))},
	} {
		p, ec := newContext(t, test.opts...)
		st := status.New("kotlin")
		v, err := test.runner.Execute(context.Background(), st, ec, data, nil)
		require.NoError(t, err, test.name)
		assert.Equal(t, target.Int(2), v, test.name)
		assert.Equal(t, status.BackendInterpretation, st.Backend(), test.name)
		assert.False(t, st.Marked(status.CompilingEvaluatorFailed), test.name)
		assert.Equal(t, 0, p.Definitions(), test.name)
	}
}

func TestExecuteEvaluatedExceptionDoesNotFallBack(t *testing.T) {
	data := compile(t, `error("boom")`, nil)
	p, ec := newContext(t)
	st := status.New("kotlin")
	_, err := NewRunner().Execute(context.Background(), st, ec, data, nil)
	assert.ErrorIs(t, err, &status.Error{Kind: status.ExceptionFromEvaluatedCode})
	assert.Equal(t, status.BackendInjection, st.Backend())
	assert.False(t, st.Marked(status.CompilingEvaluatorFailed))
	assert.Equal(t, 1, p.Definitions())
}

func TestStepLimit(t *testing.T) {
	data := compile(t, "1 + 2 + 3 + 4", nil)
	_, ec := newContext(t)
	st := status.New("kotlin")
	_, err := NewRunner(WithInjection(false), WithStepLimit(2)).Execute(context.Background(), st, ec, data, nil)
	assert.Equal(t, status.Eval4JAbnormalTermination, status.KindOf(err))
}

func TestInternalErrorIsRaw(t *testing.T) {
	data := compile(t, "1", nil)
	_, ec := newContext(t)
	// Arguments the main method does not declare break the machine.
	_, err := (&Interpretation{}).Run(context.Background(), ec, data, []target.Value{target.Int(1)})
	var ierr *interp.InternalError
	require.True(t, errors.As(err, &ierr), "%v", err)
	var serr *status.Error
	assert.False(t, errors.As(err, &serr))
}

type panicStrategy struct{}

func (panicStrategy) Name() status.Backend { return status.BackendInterpretation }

func (panicStrategy) Run(ctx context.Context, ec *target.ExecutionContext, data *compiler.CompiledData, args []target.Value) (target.Value, error) {
	panic("corrupt frame")
}

func TestRunRecoversPanics(t *testing.T) {
	_, ec := newContext(t)
	st := status.New("kotlin")
	_, err := NewRunner().run(context.Background(), st, panicStrategy{}, ec, nil, nil)
	assert.Equal(t, status.Eval4JUnknownException, status.KindOf(err))
	assert.Contains(t, err.Error(), "corrupt frame")
}

// failingInjection stands in for an injection that breaks after the
// generated code started running.
type failingInjection struct {
	run func(ec *target.ExecutionContext, args []target.Value)
}

func (failingInjection) Name() status.Backend { return status.BackendInjection }

func (s failingInjection) Run(ctx context.Context, ec *target.ExecutionContext, data *compiler.CompiledData, args []target.Value) (target.Value, error) {
	s.run(ec, args)
	return nil, fmt.Errorf("%w: lost connection to generated method", ErrInjectionFailed)
}

func TestExecuteInjectionPanicFallsBack(t *testing.T) {
	data := compile(t, "1 + 1", nil)
	_, ec := newContext(t)
	r := NewRunner()
	r.inject = failingInjection{run: func(*target.ExecutionContext, []target.Value) { panic("corrupt frame") }}
	st := status.New("kotlin")
	v, err := r.Execute(context.Background(), st, ec, data, nil)
	require.NoError(t, err)
	assert.Equal(t, target.Int(2), v)
	assert.Equal(t, status.BackendInterpretation, st.Backend())
	assert.True(t, st.Marked(status.CompilingEvaluatorFailed))
}

func TestExecuteFallbackRestoresCells(t *testing.T) {
	ctx := context.Background()
	scope := &fragment.Context{Locals: []fragment.Local{{Name: "n", Type: target.TypeInt, Mutable: true}}}
	data := compile(t, "n += 1; n", scope)
	require.Len(t, data.Parameters, 1)
	require.True(t, data.Parameters[0].Ref)

	p, ec := newContext(t)
	res, ok := p.NewInstance(ctx, ec.Thread, compiler.IntRef, nil).(target.Returned)
	require.True(t, ok)
	cell := res.Value
	require.IsType(t, target.Returned{}, p.SetField(ctx, ec.Thread, cell, compiler.RefElement, target.Int(4)))

	r := NewRunner()
	r.inject = failingInjection{run: func(ec *target.ExecutionContext, args []target.Value) {
		// The assignment lands before the failure.
		ec.Process.SetField(ctx, ec.Thread, args[0], compiler.RefElement, target.Int(5))
	}}
	st := status.New("kotlin")
	v, err := r.Execute(ctx, st, ec, data, []target.Value{cell})
	require.NoError(t, err)
	assert.Equal(t, target.Int(5), v)
	got, ok := p.GetField(ctx, ec.Thread, cell, compiler.RefElement).(target.Returned)
	require.True(t, ok)
	assert.Equal(t, target.Int(5), got.Value)
	assert.True(t, st.Marked(status.CompilingEvaluatorFailed))
}

func TestPrepare(t *testing.T) {
	scope := &fragment.Context{Locals: []fragment.Local{{Name: "p", Type: "app.Point"}}}
	data := compile(t, "p", scope)
	assert.Equal(t, []string{"app.Point"}, RequiredClasses(data))

	p, ec := newContext(t)
	require.False(t, p.FindClass("app.Point"))
	require.NoError(t, NewRunner().Prepare(context.Background(), ec, data))
	assert.True(t, p.FindClass("app.Point"))

	scope = &fragment.Context{Locals: []fragment.Local{{Name: "m", Type: "app.Missing"}}}
	data = compile(t, "m", scope)
	err := NewRunner().Prepare(context.Background(), ec, data)
	assert.ErrorIs(t, err, &status.Error{Kind: status.ClassNotFound})
	assert.Contains(t, err.Error(), "app.Missing")
}

func TestLoadableName(t *testing.T) {
	tests := map[string]string{
		target.TypeInt:                      "",
		target.TypeAny:                      "",
		"Point":                             "",
		"app.Point":                         "app.Point",
		"app.Point?":                        "app.Point",
		"java.util.List<Int>":               "java.util.List",
		compiler.MainClass:                  "",
		analysis.InlineUnitPrefix + "twice": "",
	}
	for typ, want := range tests {
		assert.Equal(t, want, loadableName(typ), typ)
	}
}
