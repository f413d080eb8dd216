// Copyright © 2018 The ELPS authors

// Package evaluator evaluates code fragments in a frame of a suspended
// debuggee thread.
//
// An evaluation analyzes the fragment, rewrites it when needed, compiles it
// (reusing a cached compilation of the same fragment at the same position),
// binds the parameters of the compiled code to values found in the frame,
// runs it in the debuggee and finally writes assignments to captured
// locals back to the frame.
package evaluator

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/backend"
	"github.com/luthersystems/fragmenteval/binder"
	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/interp"
	"github.com/luthersystems/fragmenteval/rewrite"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer evaluation spans are recorded with.
const TracerName = "github.com/luthersystems/fragmenteval/evaluator"

// DefaultLanguage is reported for fragments whose context names no
// language.
const DefaultLanguage = "kotlin"

// Evaluator evaluates code fragments.  An Evaluator is safe for concurrent
// use by evaluations on different threads.
type Evaluator struct {
	log       *logrus.Entry
	cache     compiler.Cache
	reporter  status.Reporter
	tp        trace.TracerProvider
	injection bool
	stepLimit int
	model     *analysis.Model
	facade    analysis.Facade

	tracer   trace.Tracer
	analyzer *analysis.Analyzer
	binder   *binder.Binder
	runner   *backend.Runner
	compiles atomic.Int64
}

// New returns an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{injection: true}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if e.cache == nil {
		e.cache = compiler.NewMemoryCache()
	}
	if e.reporter == nil {
		e.reporter = &status.LogReporter{Log: e.log}
	}
	if e.tp == nil {
		e.tp = otel.GetTracerProvider()
	}
	if e.model == nil {
		e.model = analysis.NewModel()
	}
	e.tracer = e.tp.Tracer(TracerName)
	e.analyzer = analysis.NewAnalyzer(&analysis.Config{Facade: e.facade, Model: e.model, Log: e.log})
	e.binder = binder.New(e.log)
	e.runner = backend.NewRunner(
		backend.WithLogger(e.log),
		backend.WithInjection(e.injection),
		backend.WithStepLimit(e.stepLimit),
	)
	return e
}

// Model returns the program model fragments are analyzed against.
func (e *Evaluator) Model() *analysis.Model {
	return e.model
}

// CompileCount returns the number of fragments compiled so far.  Cached
// compilations are not counted.
func (e *Evaluator) CompileCount() int {
	return int(e.compiles.Load())
}

// Evaluate evaluates frag, which was written at pos, in the frame of ec.
//
// A failed evaluation returns a *status.Error naming the kind of failure.
// Cancellation of ctx is returned unchanged, as are defects of the
// interpreter, which are returned as *interp.InternalError.
func (e *Evaluator) Evaluate(ctx context.Context, frag *fragment.CodeFragment, pos fragment.Position, ec *target.ExecutionContext, opts ...CallOption) (target.Value, error) {
	var c call
	for _, opt := range opts {
		opt(&c)
	}
	language := frag.Scope().Language
	if language == "" {
		language = DefaultLanguage
	}
	ctx, span := e.tracer.Start(ctx, "evaluate", trace.WithAttributes(
		semconv.CodeFilepath(pos.File),
		semconv.CodeLineNumber(pos.Line),
		attribute.String("fragmenteval.language", language),
	))
	defer span.End()

	st := status.New(language)
	log := e.log.WithFields(logrus.Fields{"evaluation": st.ID().String(), "position": pos.String()})
	v, err := e.evaluate(ctx, log, st, frag, pos, ec, c)
	if err == nil {
		st.Send(ctx, e.reporter)
		return v, nil
	}
	if canceled(err) {
		span.SetStatus(codes.Error, "canceled")
		return nil, err
	}
	var ierr *interp.InternalError
	if errors.As(err, &ierr) {
		st.Fail(status.InterpretingException, err)
		st.Send(ctx, e.reporter)
		return nil, err
	}
	var serr *status.Error
	if !errors.As(err, &serr) {
		log.WithError(err).Error("unexpected evaluation failure")
		serr = status.Wrap(status.GenericException, err, "evaluation failed")
	}
	st.Fail(serr.Kind, serr)
	st.Send(ctx, e.reporter)
	return nil, serr
}

func (e *Evaluator) evaluate(ctx context.Context, log *logrus.Entry, st *status.Status, frag *fragment.CodeFragment, pos fragment.Position, ec *target.ExecutionContext, c call) (target.Value, error) {
	if err := checkEnvironment(ec); err != nil {
		return nil, err
	}
	data, err := e.cache.GetOrCompute(fragment.Key(frag, pos), func() (*compiler.CompiledData, error) {
		return e.compile(ctx, frag)
	}, c.force)
	if err != nil {
		return nil, err
	}
	if err := e.runner.Prepare(ctx, ec, data); err != nil {
		return nil, err
	}

	bctx, span := e.tracer.Start(ctx, "bind")
	bindings, err := e.binder.Bind(bctx, ec, data)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	args := make([]target.Value, len(bindings))
	for i, b := range bindings {
		args[i] = b.Value
	}
	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		log.WithField("bindings", bindings).Debug("parameters bound")
	}

	xctx, span := e.tracer.Start(ctx, "execute")
	v, err := e.runner.Execute(xctx, st, ec, data, args)
	span.SetAttributes(attribute.String("fragmenteval.backend", string(st.Backend())))
	endSpan(span, err)
	switch {
	case err == nil:
		e.writeBack(ctx, log, ec, bindings)
		return v, nil
	case status.KindOf(err) == status.ExceptionFromEvaluatedCode:
		e.writeBack(ctx, log, ec, bindings)
	}
	return nil, err
}

// Compile analyzes, rewrites and compiles frag without evaluating it.  The
// result is not cached.
func (e *Evaluator) Compile(ctx context.Context, frag *fragment.CodeFragment) (*compiler.CompiledData, error) {
	return e.compile(ctx, frag)
}

func (e *Evaluator) compile(ctx context.Context, frag *fragment.CodeFragment) (*compiler.CompiledData, error) {
	actx, span := e.tracer.Start(ctx, "analyze")
	res, err := e.analyzer.Analyze(actx, frag)
	if err == nil {
		if rewritten, changed := rewrite.Rewrite(res); changed {
			span.AddEvent("rewritten", trace.WithAttributes(attribute.String("fragmenteval.text", rewritten.Text)))
			res, err = e.analyzer.Analyze(actx, rewritten)
		}
	}
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	_, span = e.tracer.Start(ctx, "compile")
	defer span.End()
	e.compiles.Add(1)
	data, err := compiler.Compile(res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compilation failed")
		return nil, status.Wrap(status.BackendException, err, "cannot compile fragment")
	}
	span.SetAttributes(
		attribute.Int("fragmenteval.units", len(data.Units)),
		attribute.Int("fragmenteval.parameters", len(data.Parameters)),
	)
	return data, nil
}

// checkEnvironment verifies that ec refers to a suspended thread of an
// attached process.
func checkEnvironment(ec *target.ExecutionContext) error {
	switch {
	case ec == nil || ec.Process == nil:
		return status.Errorf(status.DebuggerNotAttached, "Debugger is not attached to a process")
	case ec.Frame == nil:
		return status.Errorf(status.NoFrameProxy, "No stack frame is selected")
	case ec.Thread == nil:
		return status.Errorf(status.ThreadNotAvailable, "Thread is not available")
	case !ec.Thread.Suspended():
		return status.Errorf(status.ThreadNotSuspended, "Thread %s is not suspended", ec.Thread.Name())
	}
	return nil
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status.KindOf(err).String())
	}
	span.End()
}
