// Copyright © 2024 The ELPS authors

// Package diagnostic renders failed evaluations as annotated snippets of
// the fragment that was evaluated.
package diagnostic

import (
	"errors"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/parser/ast"
	"github.com/luthersystems/fragmenteval/parser/token"
	"github.com/luthersystems/fragmenteval/status"
)

// Severity indicates the severity level of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "unknown"
	}
}

// Span identifies a region of source code to highlight in the diagnostic.
type Span struct {
	File   string // name of the source; display name if unreadable
	Line   int    // 1-based line number
	Col    int    // 1-based start column
	EndCol int    // 1-based end column (0 = auto-detect from source)
	Label  string // text shown under the underline
}

// Diagnostic represents a single error, warning, or note with optional
// source annotations and trailing notes.
type Diagnostic struct {
	Severity Severity
	Message  string
	Spans    []Span
	Notes    []string
}

// FromError converts the error of a failed evaluation into diagnostics.
// Compilation errors produce one diagnostic per problem found, any other
// error produces a single diagnostic.
func FromError(err error) []Diagnostic {
	if err == nil {
		return nil
	}
	kind := status.KindOf(err)
	note := "evaluation failed with " + kind.String()

	var codeErrs analysis.CodeErrors
	if errors.As(err, &codeErrs) {
		diags := make([]Diagnostic, 0, len(codeErrs))
		for _, d := range codeErrs {
			diags = append(diags, Diagnostic{
				Severity: severity(d.Severity),
				Message:  d.Msg,
				Spans:    spans(d.Source, d.File, d.Category),
				Notes:    []string{note},
			})
		}
		return diags
	}

	d := Diagnostic{Severity: SeverityError, Message: err.Error(), Notes: []string{note}}
	var elem *ast.ErrorElement
	var lerr *token.LocationError
	switch {
	case errors.As(err, &elem):
		d.Message = elem.Msg
		d.Spans = spans(elem.Source, "", "syntax error")
	case errors.As(err, &lerr):
		d.Message = lerr.Err.Error()
		d.Spans = spans(lerr.Source, "", "")
	}
	var serr *status.Error
	if errors.As(err, &serr) && serr.Exception != nil {
		d.Notes = append(d.Notes, "exception object: "+serr.Exception.String())
	}
	return []Diagnostic{d}
}

func severity(s analysis.Severity) Severity {
	if s == analysis.SeverityError {
		return SeverityError
	}
	return SeverityWarning
}

func spans(loc *token.Location, file string, label string) []Span {
	if loc == nil || loc.Line <= 0 {
		return nil
	}
	if file == "" {
		file = loc.File
	}
	return []Span{{File: file, Line: loc.Line, Col: loc.Col, Label: label}}
}
