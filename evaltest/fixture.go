// Copyright © 2018 The ELPS authors

// Package evaltest contains helpers for tests that evaluate fragments in a
// simulated debuggee.
package evaltest

import (
	"strings"
	"testing"

	"github.com/luthersystems/fragmenteval/status"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/luthersystems/fragmenteval/target/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Debuggee is a simulated process built from a snapshot.
type Debuggee struct {
	*sim.Process
	Snapshot *sim.Snapshot
}

// Load builds the debuggee described by the snapshot document doc.
func Load(t testing.TB, doc string, opts ...sim.Option) *Debuggee {
	t.Helper()
	s, err := sim.ReadSnapshot(strings.NewReader(doc))
	require.NoError(t, err, "snapshot")
	p, err := s.Build(opts...)
	require.NoError(t, err, "snapshot")
	return &Debuggee{Process: p, Snapshot: s}
}

// Context returns the execution context of frame depth of thread.
func (d *Debuggee) Context(t testing.TB, thread int, depth int) *target.ExecutionContext {
	t.Helper()
	ec, err := d.Snapshot.ExecutionContext(d.Process, thread, depth)
	require.NoError(t, err)
	return ec
}

// Frame returns frame depth of thread.
func (d *Debuggee) Frame(t testing.TB, thread int, depth int) *sim.Frame {
	t.Helper()
	th, ok := d.Thread(thread)
	require.True(t, ok, "thread %d", thread)
	f, ok := th.Frame(depth)
	require.True(t, ok, "frame %d", depth)
	return f
}

// AssertKind asserts that err is a *status.Error of kind k whose message
// contains each of the fragments in msg.
func AssertKind(t testing.TB, k status.Kind, err error, msg ...string) bool {
	t.Helper()
	if !assert.Error(t, err) {
		return false
	}
	ok := assert.Equal(t, k.String(), status.KindOf(err).String(), "%v", err)
	for _, m := range msg {
		ok = assert.Contains(t, err.Error(), m) && ok
	}
	return ok
}
