// Copyright © 2018 The ELPS authors

package repl

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/luthersystems/fragmenteval/evaltest"
	"github.com/luthersystems/fragmenteval/evaluator"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T) (*Session, *evaltest.Debuggee) {
	t.Helper()
	log, _ := evaltest.Logrus(t)
	d := evaltest.Load(t, evaltest.CounterSnapshot)
	return NewSession(d.Process, d.Snapshot, evaluator.New(evaluator.WithLogger(log))), d
}

func runReplWithString(t *testing.T, s *Session, input string) string {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	go func() {
		defer inW.Close() //nolint:errcheck // test cleanup
		_, _ = io.WriteString(inW, input)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(context.Background(), s, "eval> ", WithStdin(inR), WithStdout(outW), WithHistoryFile(""))
		inR.Close()  //nolint:errcheck,gosec // test cleanup
		outW.Close() //nolint:errcheck,gosec // test cleanup
	}()

	var output bytes.Buffer
	_, _ = io.Copy(&output, outR)
	outR.Close() //nolint:errcheck,gosec // test cleanup
	require.NoError(t, <-errCh)
	return output.String()
}

func TestEnsureHistoryFilePermissions_CreatesWithRestrictedMode(t *testing.T) {
	histFile := filepath.Join(t.TempDir(), ".fragmenteval_history")
	ensureHistoryFilePermissions(histFile)

	info, err := os.Stat(histFile)
	require.NoError(t, err, "history file should be created")
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "new history file should have mode 0600")
}

func TestEnsureHistoryFilePermissions_RestrictsExistingFile(t *testing.T) {
	histFile := filepath.Join(t.TempDir(), ".fragmenteval_history")
	require.NoError(t, os.WriteFile(histFile, []byte("n + 1"), 0644))

	ensureHistoryFilePermissions(histFile)

	info, err := os.Stat(histFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "existing history file should be restricted to 0600")
	data, err := os.ReadFile(histFile)
	require.NoError(t, err)
	assert.Equal(t, "n + 1", string(data))
}

func TestEnsureHistoryFilePermissions_EmptyPathNoOp(t *testing.T) {
	ensureHistoryFilePermissions("")
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{"arithmetic", "n * 2\n", []string{"8\n"}},
		{"string", "\"a\" + n\n", []string{`"a4"`}},
		{"continuation", "val k = 3 \\\nn * k\n", []string{"12\n"}},
		{"locals", ":locals\n", []string{"n = 4\n", "counter = app.Counter@1\n", "this = app.Counter@1\n"}},
		{"error", "missing\n", []string{"error:", "'missing'", "= note: evaluation failed with CannotFindVariable"}},
		{"syntax error", "val = 1\n", []string{"--> fragment.kt:1", "ErrorElementOccurred"}},
		{"threads", ":threads\n", []string{"* 1 main (suspended)", "  2 worker (running)"}},
		{"backtrace", ":bt\n", []string{"* #0 app.Counter.tick at Counter.kt:7"}},
		{"frame", ":frame 2\nn\n", []string{"app.WorkerKt.run at Worker.kt:3", "ThreadNotSuspended"}},
		{"bad frame", ":frame 9\n", []string{"no thread 9"}},
		{"unknown command", ":fnord\n", []string{"unknown command :fnord"}},
		{"recompile", ":recompile n + 1\n", []string{"5\n"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newSession(t)
			got := runReplWithString(t, s, tc.input)
			for _, want := range tc.expected {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestRunAssignmentPersists(t *testing.T) {
	s, d := newSession(t)
	got := runReplWithString(t, s, "n = 10\nn + 1\n:quit\n")
	assert.Contains(t, got, "11\n")
	n, _ := d.Frame(t, 1, 0).Local("n")
	assert.Equal(t, target.Int(10), n)
}

func TestNameCompleter(t *testing.T) {
	s, _ := newSession(t)
	c := &nameCompleter{session: s}

	candidates, offset := c.Do([]rune("1 + co"), 6)
	assert.Equal(t, 2, offset)
	assert.Equal(t, [][]rune{[]rune("unt"), []rune("unter")}, candidates)

	candidates, offset = c.Do([]rune(":th"), 3)
	assert.Equal(t, 3, offset)
	assert.Equal(t, [][]rune{[]rune("reads")}, candidates)

	candidates, _ = c.Do([]rune("zzz"), 3)
	assert.Empty(t, candidates)
}
