// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

// Renderer formats diagnostics as annotated source snippets.
type Renderer struct {
	// Color controls ANSI color output. Default is ColorAuto.
	Color ColorMode

	// Width wraps messages and notes longer than Width columns.  Zero
	// disables wrapping.
	Width int

	// SourceReader reads the text of a named source.  If nil, os.ReadFile
	// is used.
	SourceReader func(string) ([]byte, error)
}

// FragmentSource returns a SourceReader serving text under name and
// reading any other source from disk.
func FragmentSource(name string, text string) func(string) ([]byte, error) {
	return func(file string) ([]byte, error) {
		if file == name {
			return []byte(text), nil
		}
		return os.ReadFile(file) //nolint:gosec // reads user-specified source files for display
	}
}

// Render writes a single diagnostic to w.
func (r *Renderer) Render(w io.Writer, d Diagnostic) error {
	return r.RenderAll(w, []Diagnostic{d})
}

// RenderAll writes all diagnostics to w separated by blank lines.  Each
// source file is read at most once.
func (r *Renderer) RenderAll(w io.Writer, diags []Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	out := &output{
		p:       choosePalette(r.Color, fileFromWriter(w)),
		sources: sourceCache{read: r.SourceReader, files: make(map[string][]string)},
		width:   r.Width,
	}
	for i, d := range diags {
		if i > 0 {
			out.b.WriteByte('\n')
		}
		out.diagnostic(d)
	}
	_, err := io.WriteString(w, out.b.String())
	return err
}

// RenderError renders the diagnostics of a failed evaluation.
func (r *Renderer) RenderError(w io.Writer, err error) error {
	return r.RenderAll(w, FromError(err))
}

type sourceCache struct {
	read  func(string) ([]byte, error)
	files map[string][]string
}

// line returns line n of file, or false when the file cannot be read or is
// shorter.
func (c *sourceCache) line(file string, n int) (string, bool) {
	if n <= 0 || file == "" {
		return "", false
	}
	lines, ok := c.files[file]
	if !ok {
		read := c.read
		if read == nil {
			read = os.ReadFile
		}
		if data, err := read(file); err == nil {
			lines = strings.Split(string(data), "\n")
		}
		c.files[file] = lines
	}
	if n > len(lines) {
		return "", false
	}
	return strings.TrimSuffix(lines[n-1], "\r"), true
}

type output struct {
	b       strings.Builder
	p       palette
	sources sourceCache
	width   int
}

func (o *output) printf(format string, v ...interface{}) {
	fmt.Fprintf(&o.b, format, v...)
}

func (o *output) diagnostic(d Diagnostic) {
	color := o.p.boldCyan
	switch d.Severity {
	case SeverityError:
		color = o.p.boldRed
	case SeverityWarning:
		color = o.p.yellow
	}
	sev := d.Severity.String()
	o.printf("%s%s%s%s: %s%s%s\n", color, o.p.bold, sev, o.p.reset, o.p.bold, o.wrap(d.Message, len(sev)+2), o.p.reset)

	gutter := 0
	for _, s := range d.Spans {
		if n := len(strconv.Itoa(s.Line)); s.Line > 0 && n > gutter {
			gutter = n
		}
	}
	for _, s := range d.Spans {
		o.span(s, gutter)
	}
	for _, note := range d.Notes {
		o.printf("   %s=%s note: %s\n", o.p.boldCyan, o.p.reset, o.wrap(note, 11))
	}
}

// wrap word-wraps s to the output width.  Continuation lines are indented
// by margin columns so they line up under the first line.
func (o *output) wrap(s string, margin int) string {
	if o.width <= margin {
		return s
	}
	wrapped := wordwrap.String(s, o.width-margin)
	first, rest, ok := strings.Cut(wrapped, "\n")
	if !ok {
		return wrapped
	}
	return first + "\n" + indent.String(rest, uint(margin))
}

func (o *output) span(s Span, gutter int) {
	o.printf("  %s-->%s %s\n", o.p.boldBlue, o.p.reset, s.location())
	text, ok := o.sources.line(s.File, s.Line)
	if !ok {
		o.printf("   %s|%s\n", o.p.boldBlue, o.p.reset)
		return
	}
	pad := strings.Repeat(" ", gutter)
	bar := func(prefix string) string {
		return " " + o.p.boldBlue + prefix + " |" + o.p.reset
	}
	o.printf("%s\n", bar(pad))
	o.printf("%s  %s\n", bar(fmt.Sprintf("%*d", gutter, s.Line)), strings.ReplaceAll(text, "\t", "    "))

	start, end := s.columns(text)
	o.printf("%s  %s%s%s%s", bar(pad), strings.Repeat(" ", displayWidth(text[:start-1])), o.p.boldRed, strings.Repeat("^", end-start+1), o.p.reset)
	if s.Label != "" {
		o.printf(" %s%s%s", o.p.boldRed, s.Label, o.p.reset)
	}
	o.printf("\n%s\n", bar(pad))
}

func (s Span) location() string {
	switch {
	case s.Line <= 0:
		return s.File
	case s.Col <= 0:
		return fmt.Sprintf("%s:%d", s.File, s.Line)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// columns returns the 1-based columns of text underlined by s.  Columns
// past the end of the line are clamped to one column after it.  Without an
// end column the word starting at the start column is underlined.
func (s Span) columns(text string) (start int, end int) {
	start = s.Col
	if start <= 0 {
		start = 1
	}
	if start > len(text)+1 {
		start = len(text) + 1
	}
	end = s.EndCol
	if end <= 0 {
		end = wordEnd(text, start)
	}
	if end < start {
		end = start
	}
	return start, end
}

// wordEnd returns the last column of the word starting at col.
func wordEnd(text string, col int) int {
	end := col - 1
	for end < len(text) {
		ch, size := utf8.DecodeRuneInString(text[end:])
		if !isWordRune(ch) {
			break
		}
		end += size
	}
	if end < col {
		return col
	}
	return end
}

func isWordRune(ch rune) bool {
	return ch == '_' || ch == '$' ||
		('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9') ||
		ch >= utf8.RuneSelf
}

// displayWidth returns the display width of a string, expanding tabs to 4 spaces.
func displayWidth(s string) int {
	return utf8.RuneCountInString(s) + 3*strings.Count(s, "\t")
}

func fileFromWriter(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
