// Copyright © 2018 The ELPS authors

// Package fragment describes code fragments submitted for evaluation and the
// lexical scope they are evaluated in.
package fragment

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the file name diagnostics use for fragment text.
const DefaultFile = "fragment.kt"

// CodeFragment is a snippet of source text evaluated in a suspended frame.
// A CodeFragment must not be modified after it is submitted.
type CodeFragment struct {
	Text    string
	File    string
	Context *Context
	// Rendering is set when the value will be displayed to the user, for
	// example in a hover or watch tree.
	Rendering bool
}

// New returns a fragment of text evaluated in the scope ctx.
func New(text string, ctx *Context) *CodeFragment {
	return &CodeFragment{Text: text, File: DefaultFile, Context: ctx}
}

// FileName returns the name diagnostics use for the fragment text.
func (f *CodeFragment) FileName() string {
	if f.File == "" {
		return DefaultFile
	}
	return f.File
}

// WithText returns a copy of f containing text.
func (f *CodeFragment) WithText(text string) *CodeFragment {
	cp := *f
	cp.Text = text
	return &cp
}

// Scope returns the lexical context of the fragment, which is never nil.
func (f *CodeFragment) Scope() *Context {
	if f.Context == nil {
		return &Context{}
	}
	return f.Context
}

// Position is a source position of a suspended frame.
type Position struct {
	File   string `yaml:"file"`
	Line   int    `yaml:"line"`
	Column int    `yaml:"column"`
}

func (p Position) String() string {
	if p.Column == 0 {
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

var keySpace = uuid.MustParse("9b8e1d5c-4f4a-4c59-8a31-6f2f2a6f1c3e")

// Key returns the cache key of a fragment evaluated at pos.  Fragments with
// identical text evaluated at the same position share a key.  A frame
// without a source position is keyed by the scope of the fragment instead.
func Key(f *CodeFragment, pos Position) uuid.UUID {
	data := f.Text + "\x00" + strconv.FormatBool(f.Rendering) + "\x00" + pos.String()
	if pos == (Position{}) {
		scope, err := yaml.Marshal(f.Scope())
		if err != nil {
			// Never shared.
			return uuid.New()
		}
		data += "\x00" + string(scope)
	}
	return uuid.NewSHA1(keySpace, []byte(data))
}
