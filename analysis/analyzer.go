// Copyright © 2024 The ELPS authors

package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/parser"
	"github.com/luthersystems/fragmenteval/parser/ast"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/sirupsen/logrus"
)

// Result is a fragment that passed analysis.
type Result struct {
	Fragment    *fragment.CodeFragment
	File        *ast.File
	Binding     *BindingContext
	Diagnostics []Diagnostic
}

// Config configures an Analyzer.
type Config struct {
	// Facade resolves fragments.  The default is a Resolver.
	Facade Facade
	// Model guards the program model.  The default is a private Model.
	Model *Model
	Log   *logrus.Entry
}

// Analyzer parses and checks fragments.
type Analyzer struct {
	facade Facade
	model  *Model
	log    *logrus.Entry
}

// NewAnalyzer returns an Analyzer for cfg.  cfg may be nil.
func NewAnalyzer(cfg *Config) *Analyzer {
	a := &Analyzer{}
	if cfg != nil {
		a.facade, a.model, a.log = cfg.Facade, cfg.Model, cfg.Log
	}
	if a.facade == nil {
		a.facade = NewResolver()
	}
	if a.model == nil {
		a.model = NewModel()
	}
	if a.log == nil {
		a.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return a
}

// Model returns the model guarding analysis reads.
func (a *Analyzer) Model() *Model {
	return a.model
}

// Analyze parses frag and resolves it against its context.  Failures are
// returned as *status.Error.  Cancellation of ctx is returned unchanged.
func (a *Analyzer) Analyze(ctx context.Context, frag *fragment.CodeFragment) (*Result, error) {
	f := parser.Parse(frag.FileName(), frag.Text)
	if f.HasErrors() {
		return nil, status.Wrap(status.ErrorElementOccurred, f.Errors[0], "syntax error in fragment")
	}
	var (
		bc    *BindingContext
		diags []Diagnostic
	)
	err := a.model.Read(ctx, func(ctx context.Context) error {
		var err error
		bc, diags, err = a.facadeAnalyze(ctx, f, frag.Scope())
		return err
	})
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil, err
	case errors.Is(err, ErrDumbMode):
		return nil, status.Wrap(status.DumbMode, err, "")
	default:
		var se *status.Error
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, status.Wrap(status.FrontendException, err, "analysis failed")
	}

	var errs CodeErrors
	for _, d := range diags {
		if d.Severity != SeverityError {
			continue
		}
		if d.File != f.Name {
			a.log.WithFields(logrus.Fields{
				"file":     d.File,
				"category": d.Category,
			}).Debug("ignoring diagnostic outside fragment")
			continue
		}
		if Ignored[d.Category] {
			continue
		}
		errs = append(errs, d)
	}
	if len(errs) > 0 {
		return nil, status.Wrap(status.ErrorsInCode, errs, "")
	}
	if len(bc.SuspendCalls) > 0 && !frag.Scope().CoroutineScope {
		return nil, status.Errorf(status.IllegalSuspendFunCall, "suspend function called outside of a coroutine")
	}
	return &Result{Fragment: frag, File: f, Binding: bc, Diagnostics: diags}, nil
}

func (a *Analyzer) facadeAnalyze(ctx context.Context, f *ast.File, scope *fragment.Context) (bc *BindingContext, diags []Diagnostic, err error) {
	defer func() {
		if r := recover(); r != nil {
			bc, diags = nil, nil
			err = status.Errorf(status.FrontendException, "analysis panic: %v", r)
		}
	}()
	bc, diags, err = a.facade.AnalyzeWithAllCompilerChecks(ctx, f, scope)
	if err == nil && bc == nil {
		err = fmt.Errorf("facade returned no binding context")
	}
	return bc, diags, err
}
