// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/luthersystems/fragmenteval/analysis"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRenderer returns a Renderer with colors disabled and a fake source reader.
func testRenderer(sources map[string]string) *Renderer {
	return &Renderer{
		Color: ColorNever,
		SourceReader: func(name string) ([]byte, error) {
			s, ok := sources[name]
			if !ok {
				return nil, errors.New("not found: " + name)
			}
			return []byte(s), nil
		},
	}
}

func render(t *testing.T, r *Renderer, diags ...Diagnostic) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.RenderAll(&buf, diags))
	return buf.String()
}

func TestRenderError(t *testing.T) {
	r := testRenderer(map[string]string{"fragment.kt": "val s: String = count"})
	got := render(t, r, Diagnostic{
		Severity: SeverityError,
		Message:  "Type mismatch: inferred type is Int but String was expected",
		Spans:    []Span{{File: "fragment.kt", Line: 1, Col: 17, Label: "TYPE_MISMATCH"}},
	})
	assert.Contains(t, got, "error: Type mismatch: inferred type is Int but String was expected")
	assert.Contains(t, got, "--> fragment.kt:1:17")
	assert.Contains(t, got, "val s: String = count")
	assert.Contains(t, got, strings.Repeat(" ", 16)+"^^^^^ TYPE_MISMATCH")
}

func TestRenderWarning(t *testing.T) {
	r := testRenderer(map[string]string{"fragment.kt": "val x = 1\nx + y"})
	got := render(t, r, Diagnostic{
		Severity: SeverityWarning,
		Message:  "unused value",
		Spans:    []Span{{File: "fragment.kt", Line: 2, Col: 1, EndCol: 5}},
	})
	assert.Contains(t, got, "warning: unused value")
	assert.Contains(t, got, "--> fragment.kt:2:1")
	assert.Contains(t, got, " 2 |  x + y")
}

func TestRenderNoSource(t *testing.T) {
	got := render(t, testRenderer(nil), Diagnostic{
		Severity: SeverityError,
		Message:  "some error",
		Spans:    []Span{{File: "<stdin>", Line: 5, Col: 3}},
	})
	assert.Contains(t, got, "error: some error")
	assert.Contains(t, got, "--> <stdin>:5:3")
	assert.Contains(t, got, "|")
	assert.NotContains(t, got, "^")
}

func TestRenderNotes(t *testing.T) {
	got := render(t, testRenderer(nil), Diagnostic{
		Severity: SeverityError,
		Message:  "Cannot find local variable 'n'",
		Notes:    []string{"evaluation failed with CannotFindVariable"},
	})
	assert.Contains(t, got, "= note: evaluation failed with CannotFindVariable")
	assert.NotContains(t, got, "-->")
}

func TestRenderAutoDetectEndCol(t *testing.T) {
	r := testRenderer(map[string]string{"fragment.kt": "counter.next()"})
	got := render(t, r, Diagnostic{
		Severity: SeverityError,
		Message:  "Unresolved reference: next",
		Spans:    []Span{{File: "fragment.kt", Line: 1, Col: 9}},
	})
	assert.Contains(t, got, "        ^^^^\n")
}

func TestRenderMultipleDiagnostics(t *testing.T) {
	r := testRenderer(map[string]string{"fragment.kt": "a + 1\nb + 2"})
	got := render(t, r,
		Diagnostic{Severity: SeverityError, Message: "first", Spans: []Span{{File: "fragment.kt", Line: 1, Col: 1}}},
		Diagnostic{Severity: SeverityError, Message: "second", Spans: []Span{{File: "fragment.kt", Line: 2, Col: 1}}},
	)
	assert.GreaterOrEqual(t, len(strings.Split(got, "\n\n")), 2, got)
	assert.Contains(t, got, "first")
	assert.Contains(t, got, "second")
}

func TestRenderWrap(t *testing.T) {
	r := testRenderer(nil)
	r.Width = 30
	got := render(t, r, Diagnostic{
		Severity: SeverityError,
		Message:  "the quick brown fox jumps over the lazy dog",
	})
	lines := strings.Split(strings.TrimSpace(got), "\n")
	require.Greater(t, len(lines), 1, got)
	for _, line := range lines[1:] {
		assert.True(t, strings.HasPrefix(line, "       "), "continuation %q is not indented", line)
	}
}

func TestParseColorMode(t *testing.T) {
	for in, want := range map[string]ColorMode{"": ColorAuto, "auto": ColorAuto, "Always": ColorAlways, "never": ColorNever} {
		mode, err := ParseColorMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, mode, in)
	}
	_, err := ParseColorMode("sometimes")
	assert.Error(t, err)
}

func analyze(text string, scope *fragment.Context) error {
	_, err := analysis.NewAnalyzer(nil).Analyze(context.Background(), fragment.New(text, scope))
	return err
}

func TestFromSyntaxError(t *testing.T) {
	err := analyze("val = 3", nil)
	require.Error(t, err)
	diags := FromError(err)
	require.Len(t, diags, 1)
	require.Len(t, diags[0].Spans, 1)
	assert.Equal(t, fragment.DefaultFile, diags[0].Spans[0].File)
	assert.Equal(t, 1, diags[0].Spans[0].Line)
	assert.Equal(t, []string{"evaluation failed with ErrorElementOccurred"}, diags[0].Notes)

	r := &Renderer{Color: ColorNever, SourceReader: FragmentSource(fragment.DefaultFile, "val = 3")}
	var buf bytes.Buffer
	require.NoError(t, r.RenderError(&buf, err))
	assert.Contains(t, buf.String(), "--> fragment.kt:1")
	assert.Contains(t, buf.String(), "val = 3")
}

func TestFromCodeErrors(t *testing.T) {
	err := analyze("val s: String = 1\nval b: Boolean = 2", nil)
	require.Equal(t, status.ErrorsInCode, status.KindOf(err))
	diags := FromError(err)
	require.Len(t, diags, 2)
	for i, d := range diags {
		assert.Equal(t, SeverityError, d.Severity)
		assert.Contains(t, d.Message, "Type mismatch")
		require.Len(t, d.Spans, 1)
		assert.Equal(t, i+1, d.Spans[0].Line)
		assert.Equal(t, analysis.TypeMismatch, d.Spans[0].Label)
	}
}

func TestFromStatusError(t *testing.T) {
	exc := target.Object{ID: 7, Class: "java.lang.IllegalStateException"}
	err := &status.Error{Kind: status.ExceptionFromEvaluatedCode, Msg: "java.lang.IllegalStateException: stop", Exception: exc}
	diags := FromError(err)
	require.Len(t, diags, 1)
	assert.Equal(t, "java.lang.IllegalStateException: stop", diags[0].Message)
	assert.Empty(t, diags[0].Spans)
	assert.Equal(t, []string{
		"evaluation failed with ExceptionFromEvaluatedCode",
		"exception object: " + exc.String(),
	}, diags[0].Notes)

	assert.Nil(t, FromError(nil))
}
