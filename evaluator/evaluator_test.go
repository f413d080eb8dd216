// Copyright © 2018 The ELPS authors

package evaluator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/luthersystems/fragmenteval/evaltest"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/luthersystems/fragmenteval/target/sim"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recorder struct {
	mu      sync.Mutex
	reports []*status.Report
}

func (r *recorder) Report(ctx context.Context, rep *status.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func (r *recorder) last(t *testing.T) *status.Report {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.reports)
	return r.reports[len(r.reports)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

type fixture struct {
	debuggee *evaltest.Debuggee
	eval     *Evaluator
	reports  *recorder
	logs     *evaltest.Hook
	ec       *target.ExecutionContext
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return loadFixture(t, evaltest.CounterSnapshot, opts...)
}

func loadFixture(t *testing.T, doc string, opts ...Option) *fixture {
	t.Helper()
	log, hook := evaltest.Logrus(t)
	d := evaltest.Load(t, doc, sim.WithLogger(log))
	reports := &recorder{}
	opts = append([]Option{WithLogger(log), WithReporter(reports)}, opts...)
	return &fixture{
		debuggee: d,
		eval:     New(opts...),
		reports:  reports,
		logs:     hook,
		ec:       d.Context(t, 1, 0),
	}
}

var mainPos = fragment.Position{File: "Counter.kt", Line: 7}

func (f *fixture) evaluate(text string, opts ...CallOption) (target.Value, error) {
	frame := f.ec.Frame.(*sim.Frame)
	frag := fragment.New(text, frame.Scope())
	return f.eval.Evaluate(context.Background(), frag, frame.Position(), f.ec, opts...)
}

func TestEvaluateConstant(t *testing.T) {
	for _, injection := range []bool{true, false} {
		f := newFixture(t, WithInjection(injection))
		v, err := f.evaluate("1 + 1")
		require.NoError(t, err)
		assert.Equal(t, target.Int(2), v)
		rep := f.reports.last(t)
		assert.Equal(t, status.Success, rep.Kind)
		if injection {
			assert.Equal(t, status.BackendInjection, rep.Backend)
		} else {
			assert.Equal(t, status.BackendInterpretation, rep.Backend)
		}
	}
}

func TestEvaluateLocals(t *testing.T) {
	f := newFixture(t)
	v, err := f.evaluate("n * 2")
	require.NoError(t, err)
	assert.Equal(t, target.Int(8), v)

	v, err = f.evaluate("n += 10; n")
	require.NoError(t, err)
	assert.Equal(t, target.Int(14), v)
	n, ok := f.debuggee.Frame(t, 1, 0).Local("n")
	require.True(t, ok)
	assert.Equal(t, target.Int(14), n)

	v, err = f.evaluate("n * 2")
	require.NoError(t, err)
	assert.Equal(t, target.Int(28), v)
}

func TestEvaluateWriteBackInterpreted(t *testing.T) {
	f := newFixture(t, WithInjection(false))
	_, err := f.evaluate("n = n - 1")
	require.NoError(t, err)
	n, _ := f.debuggee.Frame(t, 1, 0).Local("n")
	assert.Equal(t, target.Int(3), n)
}

func TestEvaluateReceiver(t *testing.T) {
	f := newFixture(t)
	v, err := f.evaluate("count * 10")
	require.NoError(t, err)
	assert.Equal(t, target.Int(30), v)

	v, err = f.evaluate("counter.next()")
	require.NoError(t, err)
	assert.Equal(t, target.Int(4), v)

	_, err = f.evaluate("count = 7")
	require.NoError(t, err)
	count, _ := f.debuggee.Field(f.ec.Frame.This(), "count")
	assert.Equal(t, target.Int(7), count)
}

func TestEvaluateRendering(t *testing.T) {
	f := newFixture(t)
	frag := fragment.New("counter", f.debuggee.Frame(t, 1, 0).Scope())
	frag.Rendering = true
	v, err := f.eval.Evaluate(context.Background(), frag, mainPos, f.ec)
	require.NoError(t, err)
	assert.Equal(t, target.String("app.Counter@1"), v)
}

func TestEvaluateThreadNotSuspended(t *testing.T) {
	f := newFixture(t)
	ec := f.debuggee.Context(t, 2, 0)
	frag := fragment.New("1 + 1", nil)
	_, err := f.eval.Evaluate(context.Background(), frag, fragment.Position{File: "Worker.kt", Line: 3}, ec)
	evaltest.AssertKind(t, status.ThreadNotSuspended, err, "worker")
	assert.Equal(t, 0, f.eval.CompileCount())
	assert.Equal(t, status.ThreadNotSuspended, f.reports.last(t).Kind)
}

func TestEvaluateEnvironment(t *testing.T) {
	f := newFixture(t)
	frag := fragment.New("1", nil)
	tests := []struct {
		ec   *target.ExecutionContext
		kind status.Kind
	}{
		{nil, status.DebuggerNotAttached},
		{&target.ExecutionContext{}, status.DebuggerNotAttached},
		{&target.ExecutionContext{Process: f.ec.Process, Thread: f.ec.Thread}, status.NoFrameProxy},
		{&target.ExecutionContext{Process: f.ec.Process, Frame: f.ec.Frame}, status.ThreadNotAvailable},
	}
	for _, test := range tests {
		_, err := f.eval.Evaluate(context.Background(), frag, mainPos, test.ec)
		evaltest.AssertKind(t, test.kind, err)
	}
	assert.Equal(t, 0, f.eval.CompileCount())
}

func TestEvaluateCannotFindVariable(t *testing.T) {
	f := newFixture(t)
	_, err := f.evaluate("missing + 1")
	evaltest.AssertKind(t, status.CannotFindVariable, err, "'missing'")
}

func TestEvaluateCache(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		v, err := f.evaluate("n + 1")
		require.NoError(t, err)
		assert.Equal(t, target.Int(5), v)
	}
	assert.Equal(t, 1, f.eval.CompileCount())

	_, err := f.evaluate("n + 1", Recompile())
	require.NoError(t, err)
	assert.Equal(t, 2, f.eval.CompileCount())

	frag := fragment.New("n + 1", f.ec.Frame.(*sim.Frame).Scope())
	_, err = f.eval.Evaluate(context.Background(), frag, fragment.Position{File: "Counter.kt", Line: 8}, f.ec)
	require.NoError(t, err)
	assert.Equal(t, 3, f.eval.CompileCount())
}

func TestEvaluateFallback(t *testing.T) {
	f := newFixture(t)
	f.debuggee.FailDefinitions("class redefinition is not supported")
	v, err := f.evaluate("6 * 7")
	require.NoError(t, err)
	assert.Equal(t, target.Int(42), v)

	rep := f.reports.last(t)
	assert.Equal(t, status.Success, rep.Kind)
	assert.Equal(t, status.BackendInterpretation, rep.Backend)
	assert.Equal(t, []status.Kind{status.CompilingEvaluatorFailed}, rep.Markers)
	assert.NotEmpty(t, f.logs.Messages(logrus.WarnLevel))
}

func TestEvaluateSyntaxError(t *testing.T) {
	f := newFixture(t)
	_, err := f.evaluate("val = 3")
	evaltest.AssertKind(t, status.ErrorElementOccurred, err)
	assert.Equal(t, 0, f.eval.CompileCount())
}

func TestEvaluateErrorsInCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.evaluate(`n = "text"`)
	evaltest.AssertKind(t, status.ErrorsInCode, err)
	assert.Equal(t, 0, f.eval.CompileCount())
}

func TestEvaluateException(t *testing.T) {
	for _, injection := range []bool{true, false} {
		f := newFixture(t, WithInjection(injection))
		_, err := f.evaluate(`n = 99; error("stop")`)
		evaltest.AssertKind(t, status.ExceptionFromEvaluatedCode, err, "IllegalStateException: stop")
		var serr *status.Error
		require.True(t, errors.As(err, &serr))
		require.NotNil(t, serr.Exception)
		assert.Equal(t, sim.IllegalStateException, serr.Exception.Type())
		msg, _ := f.debuggee.Field(serr.Exception, sim.MessageField)
		assert.Equal(t, target.String("stop"), msg)

		// Assignments made before the exception are kept.
		n, _ := f.debuggee.Frame(t, 1, 0).Local("n")
		assert.Equal(t, target.Int(99), n)
	}
}

func TestEvaluateCanceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frag := fragment.New("1 + 1", nil)
	_, err := f.eval.Evaluate(ctx, frag, mainPos, f.ec)
	assert.ErrorIs(t, err, context.Canceled)
	var serr *status.Error
	assert.False(t, errors.As(err, &serr))
	assert.Equal(t, 0, f.reports.count())
}

func TestEvaluateSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	t.Cleanup(func() {
		assert.NoError(t, tp.Shutdown(context.Background()), "TracerProvider shutdown")
	})
	f := newFixture(t, WithTracerProvider(tp))
	_, err := f.evaluate("n + 1")
	require.NoError(t, err)

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"analyze", "compile", "bind", "execute", "evaluate"}, names)
}

func TestEvaluateIntOverflow(t *testing.T) {
	tests := []struct {
		text     string
		expected target.Value
	}{
		{"2147483647 + 1", target.Int(-2147483648)},
		{"-2147483648 - 1", target.Int(2147483647)},
		{"65536 * 65536", target.Int(0)},
		{"-2147483648 / -1", target.Int(-2147483648)},
		{"-(-2147483648)", target.Int(-2147483648)},
	}
	for _, injection := range []bool{true, false} {
		f := newFixture(t, WithInjection(injection))
		for _, test := range tests {
			v, err := f.evaluate(test.text)
			require.NoError(t, err, test.text)
			assert.Equal(t, test.expected, v, test.text)
		}
		_, err := f.evaluate("9999999999")
		evaltest.AssertKind(t, status.ErrorsInCode, err, "out of range")
	}
}

func TestEvaluateNothingOperand(t *testing.T) {
	f := newFixture(t)
	v, err := f.evaluate(`n == 4 || error("unreachable")`)
	require.NoError(t, err)
	assert.Equal(t, target.Bool(true), v)

	_, err = f.evaluate(`n == 1 || error("no match")`)
	evaltest.AssertKind(t, status.ExceptionFromEvaluatedCode, err, "no match")
}

func TestEvaluateWriteBackSpilled(t *testing.T) {
	for _, injection := range []bool{true, false} {
		f := loadFixture(t, evaltest.CoroutineSnapshot, WithInjection(injection))
		v, err := f.evaluate("a += 1; a")
		require.NoError(t, err)
		assert.Equal(t, target.Int(6), v)
		frame := f.debuggee.Frame(t, 1, 0)
		assert.Equal(t, target.Int(6), frame.Spilled()["a"])
		_, isLocal := frame.Local("a")
		assert.False(t, isLocal)
	}
}

func TestEvaluateWriteBackFailureIsLogged(t *testing.T) {
	f := loadFixture(t, evaltest.CoroutineSnapshot)
	v, err := f.evaluate(`x = "s"; 42`)
	require.NoError(t, err)
	assert.Equal(t, target.Int(42), v)
	x, _ := f.debuggee.Frame(t, 1, 0).Local("x")
	assert.Equal(t, target.Int(7), x)
	assert.Contains(t, f.logs.Messages(logrus.WarnLevel), "cannot write back local variable")
	assert.Equal(t, status.Success, f.reports.last(t).Kind)
}

func TestEvaluateSuspendCall(t *testing.T) {
	for _, injection := range []bool{true, false} {
		f := loadFixture(t, evaltest.CoroutineSnapshot, WithInjection(injection))
		v, err := f.evaluate("delay(1); n + 1")
		require.NoError(t, err)
		assert.Equal(t, target.Int(2), v)
	}

	f := newFixture(t)
	scope := *f.ec.Frame.(*sim.Frame).Scope()
	scope.Functions = append([]fragment.Function(nil), fragment.Function{
		Name: "delay", Owner: "kotlinx.coroutines.DelayKt", Params: []string{"Int"}, Result: "Unit", Suspend: true,
	})
	_, err := f.eval.Evaluate(context.Background(), fragment.New("delay(1)", &scope), mainPos, f.ec)
	evaltest.AssertKind(t, status.IllegalSuspendFunCall, err)
}
