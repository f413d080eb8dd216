// Copyright © 2018 The ELPS authors

package evaluator

import (
	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/compiler"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used by the evaluator and its stages.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Evaluator) {
		e.log = log
	}
}

// WithCache sets the cache of compiled fragments.  The default is an
// unbounded compiler.MemoryCache.
func WithCache(c compiler.Cache) Option {
	return func(e *Evaluator) {
		e.cache = c
	}
}

// WithReporter sets the receiver of evaluation reports.  The default logs
// reports.
func WithReporter(r status.Reporter) Option {
	return func(e *Evaluator) {
		e.reporter = r
	}
}

// WithTracerProvider sets the provider of the tracer spans are recorded
// with.  The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Evaluator) {
		e.tp = tp
	}
}

// WithInjection enables or disables defining compiled classes in the
// debuggee.  When disabled every fragment is interpreted.
func WithInjection(enabled bool) Option {
	return func(e *Evaluator) {
		e.injection = enabled
	}
}

// WithStepLimit bounds the instructions an interpreted fragment may execute.
func WithStepLimit(n int) Option {
	return func(e *Evaluator) {
		e.stepLimit = n
	}
}

// WithModel sets the program model analysis reads from.
func WithModel(m *analysis.Model) Option {
	return func(e *Evaluator) {
		e.model = m
	}
}

// WithFacade replaces the resolver used to analyze fragments.
func WithFacade(f analysis.Facade) Option {
	return func(e *Evaluator) {
		e.facade = f
	}
}

// CallOption configures a single evaluation.
type CallOption func(*call)

type call struct {
	force bool
}

// Recompile compiles the fragment even when a compiled form is cached.
func Recompile() CallOption {
	return func(c *call) {
		c.force = true
	}
}
