// Copyright © 2024 The ELPS authors

// Package rewrite makes implicit operations of an analyzed fragment explicit
// in its source text.
package rewrite

import (
	"sort"
	"strings"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/parser/ast"
	"github.com/luthersystems/fragmenteval/target"
)

// Edit replaces the text between Pos and End.  Insertions have Pos == End.
type Edit struct {
	Pos, End int
	Text     string
}

// trivial types render without an explicit toString call.
var trivial = map[string]bool{
	target.TypeInt:     true,
	target.TypeDouble:  true,
	target.TypeBoolean: true,
	target.TypeString:  true,
	target.TypeUnit:    true,
	target.TypeNothing: true,
	target.TypeNull:    true,
}

// Edits returns the rewrites that apply to res.
func Edits(res *analysis.Result) []Edit {
	var edits []Edit
	frag, bc := res.Fragment, res.Binding
	if frag.Rendering && !trivial[bc.ResultType] {
		if last, ok := res.File.Last().(*ast.ExprStmt); ok {
			x := last.X
			edits = append(edits,
				Edit{Pos: x.Pos(), End: x.Pos(), Text: "("},
				Edit{Pos: x.End(), End: x.End(), Text: ").toString()"})
		}
	}
	if frag.Scope().CoroutineScope {
		for _, c := range bc.SuspendCalls {
			if bc.Calls[c].Threaded {
				continue
			}
			text := ", " + analysis.CompletionName
			if len(c.Args) == 0 {
				text = analysis.CompletionName
			}
			edits = append(edits, Edit{Pos: c.Rparen, End: c.Rparen, Text: text})
		}
	}
	return edits
}

// Apply applies edits to text.  Edits must not overlap.  Insertions at the
// same offset are applied in the order given.
func Apply(text string, edits []Edit) string {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Pos < sorted[j].Pos
	})
	var b strings.Builder
	last := 0
	for _, e := range sorted {
		b.WriteString(text[last:e.Pos])
		b.WriteString(e.Text)
		last = e.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Rewrite applies every rewrite for res.  It reports whether the fragment
// text changed, in which case the result must be analyzed again.
func Rewrite(res *analysis.Result) (*fragment.CodeFragment, bool) {
	edits := Edits(res)
	if len(edits) == 0 {
		return res.Fragment, false
	}
	text := Apply(res.Fragment.Text, edits)
	if text == res.Fragment.Text {
		return res.Fragment, false
	}
	return res.Fragment.WithText(text), true
}
