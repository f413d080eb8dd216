// Copyright © 2018 The ELPS authors

// Package repl implements an interactive loop evaluating code fragments in
// the frames of a debuggee snapshot.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ergochat/readline"
	"github.com/luthersystems/fragmenteval/diagnostic"
	"github.com/luthersystems/fragmenteval/evaluator"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/luthersystems/fragmenteval/target/sim"
)

type config struct {
	stdin   io.ReadCloser
	stdout  io.Writer
	history string
	color   diagnostic.ColorMode
}

func newConfig(opts ...Option) *config {
	c := &config{history: historyPath()}
	for _, opt := range opts {
		opt(c)
	}
	if c.stdout == nil {
		c.stdout = os.Stderr
	}
	return c
}

type Option func(*config)

// WithStdin allows overriding the input to the REPL.
func WithStdin(stdin io.ReadCloser) Option {
	return func(c *config) {
		c.stdin = stdin
	}
}

// WithStdout allows overriding the output of the REPL.
func WithStdout(stdout io.Writer) Option {
	return func(c *config) {
		c.stdout = stdout
	}
}

// WithHistoryFile sets the file line history is kept in.  An empty path
// disables the history file.
func WithHistoryFile(path string) Option {
	return func(c *config) {
		c.history = path
	}
}

// WithColor sets the color mode of error diagnostics.
func WithColor(mode diagnostic.ColorMode) Option {
	return func(c *config) {
		c.color = mode
	}
}

// Session is the debuggee a REPL evaluates in.
type Session struct {
	Process  *sim.Process
	Snapshot *sim.Snapshot
	Eval     *evaluator.Evaluator

	mu     sync.Mutex
	thread int
	depth  int
}

// NewSession returns a session evaluating in the top frame of the first
// suspended thread of p.
func NewSession(p *sim.Process, snap *sim.Snapshot, eval *evaluator.Evaluator) *Session {
	s := &Session{Process: p, Snapshot: snap, Eval: eval}
	for _, t := range p.Threads() {
		if t.Suspended() {
			s.thread = t.ID()
			break
		}
	}
	if s.thread == 0 {
		if threads := p.Threads(); len(threads) > 0 {
			s.thread = threads[0].ID()
		}
	}
	return s
}

// Select makes frame depth of thread the frame fragments are evaluated in.
func (s *Session) Select(thread int, depth int) error {
	t, ok := s.Process.Thread(thread)
	if !ok {
		return fmt.Errorf("no thread %d", thread)
	}
	if _, ok := t.Frame(depth); !ok {
		return fmt.Errorf("thread %d has no frame %d", thread, depth)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread, s.depth = thread, depth
	return nil
}

// Current returns the selected thread and frame depth.
func (s *Session) Current() (thread int, depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread, s.depth
}

// Frame returns the selected frame.
func (s *Session) Frame() (*sim.Frame, bool) {
	thread, depth := s.Current()
	t, ok := s.Process.Thread(thread)
	if !ok {
		return nil, false
	}
	return t.Frame(depth)
}

// Evaluate evaluates text in the selected frame.
func (s *Session) Evaluate(ctx context.Context, text string, opts ...evaluator.CallOption) (*fragment.CodeFragment, target.Value, error) {
	thread, depth := s.Current()
	f, ok := s.Frame()
	if !ok {
		return nil, nil, fmt.Errorf("no frame selected")
	}
	frag := fragment.New(text, f.Scope())
	ec, err := s.Snapshot.ExecutionContext(s.Process, thread, depth)
	if err != nil {
		return frag, nil, err
	}
	v, err := s.Eval.Evaluate(ctx, frag, f.Position(), ec, opts...)
	return frag, v, err
}

// Run reads fragments from the terminal and evaluates them in s until the
// input ends, ctx is done or the user quits.  A line ending in a backslash
// continues on the next line.
func Run(ctx context.Context, s *Session, prompt string, opts ...Option) error {
	cfg := newConfig(opts...)
	cont := strings.Repeat(" ", len(prompt)-2) + "| "
	if len(prompt) < 2 {
		cont = prompt
	}
	ensureHistoryFilePermissions(cfg.history)

	rlCfg := &readline.Config{
		Stdout:            cfg.stdout,
		Stderr:            cfg.stdout,
		Prompt:            prompt,
		HistoryFile:       cfg.history,
		HistorySearchFold: true,
		AutoComplete:      &nameCompleter{session: s},
	}
	if cfg.stdin != nil {
		rlCfg.Stdin = cfg.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	r := &runner{session: s, out: cfg.stdout, renderer: &diagnostic.Renderer{Color: cfg.color}}
	var pending []string
	for ctx.Err() == nil {
		if len(pending) > 0 {
			rl.SetPrompt(cont)
		} else {
			rl.SetPrompt(prompt)
		}
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			pending = nil
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, " \t\r")
		if strings.HasSuffix(line, `\`) {
			pending = append(pending, strings.TrimSuffix(line, `\`))
			continue
		}
		text := strings.TrimSpace(strings.Join(append(pending, line), "\n"))
		pending = nil
		if text == "" {
			continue
		}
		if quit := r.exec(ctx, text); quit {
			return nil
		}
	}
	return ctx.Err()
}

type runner struct {
	session  *Session
	out      io.Writer
	renderer *diagnostic.Renderer
}

// exec runs a command or evaluates a fragment.  It reports whether the
// user asked to quit.
func (r *runner) exec(ctx context.Context, text string) bool {
	if !strings.HasPrefix(text, ":") {
		r.evaluate(ctx, text)
		return false
	}
	cmd, arg, _ := strings.Cut(text[1:], " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "q", "quit":
		return true
	case "help":
		r.println(helpText)
	case "threads":
		r.threads()
	case "bt", "backtrace":
		r.backtrace()
	case "frame":
		r.frame(arg)
	case "locals":
		r.locals()
	case "recompile":
		r.evaluate(ctx, arg, evaluator.Recompile())
	default:
		r.printf("unknown command :%s (try :help)\n", cmd)
	}
	return false
}

const helpText = `Fragments are evaluated in the selected frame.  End a line with \ to
continue the fragment on the next line.

  :threads            list threads
  :bt                 show the stack of the selected thread
  :frame T [D]        select frame D (default 0) of thread T
  :locals             show the variables of the selected frame
  :recompile FRAG     evaluate FRAG without using a cached compilation
  :quit               leave the REPL`

func (r *runner) evaluate(ctx context.Context, text string, opts ...evaluator.CallOption) {
	if text == "" {
		r.println("nothing to evaluate")
		return
	}
	frag, v, err := r.session.Evaluate(ctx, text, opts...)
	if err != nil {
		rr := *r.renderer
		if frag != nil {
			rr.SourceReader = diagnostic.FragmentSource(frag.FileName(), frag.Text)
		}
		if rerr := rr.RenderError(r.out, err); rerr != nil {
			r.println(err.Error())
		}
		return
	}
	if _, ok := v.(target.Void); ok {
		return
	}
	r.println(formatValue(r.session.Process, v))
}

func (r *runner) threads() {
	current, _ := r.session.Current()
	for _, t := range r.session.Process.Threads() {
		mark := " "
		if t.ID() == current {
			mark = "*"
		}
		state := "running"
		if t.Suspended() {
			state = "suspended"
		}
		r.printf("%s %d %s (%s)\n", mark, t.ID(), t.Name(), state)
	}
}

func (r *runner) backtrace() {
	thread, depth := r.session.Current()
	t, ok := r.session.Process.Thread(thread)
	if !ok {
		r.printf("no thread %d\n", thread)
		return
	}
	for i, f := range t.Frames() {
		mark := " "
		if i == depth {
			mark = "*"
		}
		file, line := f.Source()
		r.printf("%s #%d %s at %s:%d\n", mark, i, f.Method(), file, line)
	}
}

func (r *runner) frame(arg string) {
	fields := strings.Fields(arg)
	if len(fields) == 0 || len(fields) > 2 {
		r.println("usage: :frame THREAD [DEPTH]")
		return
	}
	nums := make([]int, 2)
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			r.printf("invalid number %q\n", field)
			return
		}
		nums[i] = n
	}
	if err := r.session.Select(nums[0], nums[1]); err != nil {
		r.println(err.Error())
		return
	}
	f, _ := r.session.Frame()
	file, line := f.Source()
	r.printf("%s at %s:%d\n", f.Method(), file, line)
}

func (r *runner) locals() {
	f, ok := r.session.Frame()
	if !ok {
		r.println("no frame selected")
		return
	}
	for _, l := range f.LocalSlots() {
		r.printf("%s = %s\n", l.Name, formatValue(r.session.Process, l.Value))
	}
	spilled := f.Spilled()
	for _, name := range f.SpilledNames() {
		r.printf("%s = %s (spilled)\n", name, formatValue(r.session.Process, spilled[name]))
	}
	if this := f.This(); this != nil {
		r.printf("this = %s\n", formatValue(r.session.Process, this))
	}
}

func (r *runner) println(s string) {
	fmt.Fprintln(r.out, s) //nolint:errcheck // best-effort REPL output
}

func (r *runner) printf(format string, v ...interface{}) {
	fmt.Fprintf(r.out, format, v...) //nolint:errcheck // best-effort REPL output
}

func formatValue(p *sim.Process, v target.Value) string {
	if s, ok := v.(target.String); ok {
		return strconv.Quote(string(s))
	}
	return p.Render(v)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fragmenteval_history")
}

// ensureHistoryFilePermissions creates the history file readable only by
// its owner, or restricts an existing one.
func ensureHistoryFilePermissions(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) //nolint:gosec // user history file
	if err != nil {
		return
	}
	f.Close() //nolint:errcheck,gosec // only created for its mode
	_ = os.Chmod(path, 0600)
}
