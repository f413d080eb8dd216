// Copyright © 2018 The ELPS authors

package dapserver

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/luthersystems/fragmenteval/evaltest"
	"github.com/luthersystems/fragmenteval/evaluator"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainFrame = 1000

type session struct {
	t        *testing.T
	debuggee *evaltest.Debuggee
	conn     net.Conn
	reader   *bufio.Reader
	seq      int
	served   chan error
}

func newSession(t *testing.T) *session {
	t.Helper()
	return startSession(t, func(srv *Server) (net.Conn, func() error) {
		client, server := net.Pipe()
		return client, func() error { return srv.ServeConn(server) }
	})
}

// startSession connects a client to a new server.  connect returns the
// client end and the call serving the other end.
func startSession(t *testing.T, connect func(*Server) (net.Conn, func() error)) *session {
	t.Helper()
	log, _ := evaltest.Logrus(t)
	d := evaltest.Load(t, evaltest.CounterSnapshot)
	srv := New(d.Process, d.Snapshot, evaluator.New(evaluator.WithLogger(log)), WithLogger(log))

	client, serve := connect(srv)
	t.Cleanup(func() { client.Close() }) //nolint:errcheck
	s := &session{t: t, debuggee: d, conn: client, reader: bufio.NewReader(client), served: make(chan error, 1)}
	go func() {
		s.served <- serve()
	}()
	return s
}

func (s *session) request(command string) dap.Request {
	s.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.seq, Type: "request"},
		Command:         command,
	}
}

func (s *session) send(msg dap.Message) {
	s.t.Helper()
	sendDAPRequest(s.t, s.conn, msg)
}

func (s *session) read() dap.Message {
	s.t.Helper()
	return readDAPMessage(s.t, s.reader)
}

func (s *session) evaluate(expr string, frame int, context string) dap.Message {
	s.t.Helper()
	s.send(&dap.EvaluateRequest{
		Request:   s.request("evaluate"),
		Arguments: dap.EvaluateArguments{Expression: expr, FrameId: frame, Context: context},
	})
	return s.read()
}

func (s *session) disconnect() {
	s.t.Helper()
	s.send(&dap.DisconnectRequest{Request: s.request("disconnect")})
	_, ok := s.read().(*dap.DisconnectResponse)
	assert.True(s.t, ok, "expected DisconnectResponse")
	_, ok = s.read().(*dap.TerminatedEvent)
	assert.True(s.t, ok, "expected TerminatedEvent")
	select {
	case err := <-s.served:
		assert.NoError(s.t, err)
	case <-time.After(5 * time.Second):
		s.t.Fatal("server did not stop after disconnect")
	}
}

func sendDAPRequest(t *testing.T, w io.Writer, msg dap.Message) {
	t.Helper()
	err := dap.WriteProtocolMessage(w, msg)
	require.NoError(t, err)
}

func readDAPMessage(t *testing.T, r *bufio.Reader) dap.Message {
	t.Helper()
	done := make(chan dap.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			errCh <- err
			return
		}
		done <- msg
	}()
	select {
	case msg := <-done:
		return msg
	case err := <-errCh:
		t.Fatalf("read DAP message: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out reading DAP message")
	}
	return nil
}

func TestDAPServer_InitializeAndDisconnect(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	s.send(&dap.InitializeRequest{
		Request:   s.request("initialize"),
		Arguments: dap.InitializeRequestArguments{AdapterID: "fragmenteval", LinesStartAt1: true},
	})
	resp, ok := s.read().(*dap.InitializeResponse)
	require.True(t, ok, "expected InitializeResponse")
	assert.True(t, resp.Success)
	assert.True(t, resp.Body.SupportsEvaluateForHovers)
	assert.True(t, resp.Body.SupportsSetVariable)
	_, ok = s.read().(*dap.InitializedEvent)
	assert.True(t, ok, "expected InitializedEvent")
	s.disconnect()
}

func TestDAPServer_ServeListener(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := startSession(t, func(srv *Server) (net.Conn, func() error) {
		served := make(chan error, 1)
		go func() { served <- srv.ServeListener(ln) }()
		client, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		return client, func() error { return <-served }
	})
	s.send(&dap.ThreadsRequest{Request: s.request("threads")})
	resp, ok := s.read().(*dap.ThreadsResponse)
	require.True(t, ok, "expected ThreadsResponse")
	assert.NotEmpty(t, resp.Body.Threads)
	s.disconnect()
}

func TestDAPServer_ServeStdioEndsAtEOF(t *testing.T) {
	t.Parallel()
	d := evaltest.Load(t, evaltest.CounterSnapshot)
	srv := New(d.Process, d.Snapshot, evaluator.New())
	in, clientOut := io.Pipe()
	clientIn, out := io.Pipe()
	served := make(chan error, 1)
	go func() { served <- srv.ServeStdio(in, out) }()

	reader := bufio.NewReader(clientIn)
	sendDAPRequest(t, clientOut, &dap.ThreadsRequest{Request: dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
		Command:         "threads",
	}})
	_, ok := readDAPMessage(t, reader).(*dap.ThreadsResponse)
	assert.True(t, ok, "expected ThreadsResponse")

	require.NoError(t, clientOut.Close())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop at end of input")
	}
}

func TestDAPServer_AttachReportsSuspendedThreads(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	s.send(&dap.AttachRequest{Request: s.request("attach")})
	_, ok := s.read().(*dap.AttachResponse)
	require.True(t, ok, "expected AttachResponse")
	evt, ok := s.read().(*dap.StoppedEvent)
	require.True(t, ok, "expected StoppedEvent")
	assert.Equal(t, 1, evt.Body.ThreadId)
	s.disconnect()
}

func TestDAPServer_Inspect(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	s.send(&dap.ThreadsRequest{Request: s.request("threads")})
	threads, ok := s.read().(*dap.ThreadsResponse)
	require.True(t, ok, "expected ThreadsResponse")
	assert.Equal(t, []dap.Thread{{Id: 1, Name: "main"}, {Id: 2, Name: "worker"}}, threads.Body.Threads)

	s.send(&dap.StackTraceRequest{Request: s.request("stackTrace"), Arguments: dap.StackTraceArguments{ThreadId: 1}})
	trace, ok := s.read().(*dap.StackTraceResponse)
	require.True(t, ok, "expected StackTraceResponse")
	require.Len(t, trace.Body.StackFrames, 1)
	frame := trace.Body.StackFrames[0]
	assert.Equal(t, mainFrame, frame.Id)
	assert.Equal(t, "app.Counter.tick", frame.Name)
	assert.Equal(t, 7, frame.Line)
	require.NotNil(t, frame.Source)
	assert.Equal(t, "Counter.kt", frame.Source.Name)

	s.send(&dap.ScopesRequest{Request: s.request("scopes"), Arguments: dap.ScopesArguments{FrameId: mainFrame}})
	scopes, ok := s.read().(*dap.ScopesResponse)
	require.True(t, ok, "expected ScopesResponse")
	require.Len(t, scopes.Body.Scopes, 1)
	localsRef := scopes.Body.Scopes[0].VariablesReference
	require.NotZero(t, localsRef)

	s.send(&dap.VariablesRequest{Request: s.request("variables"), Arguments: dap.VariablesArguments{VariablesReference: localsRef}})
	vars, ok := s.read().(*dap.VariablesResponse)
	require.True(t, ok, "expected VariablesResponse")
	require.Len(t, vars.Body.Variables, 3)
	assert.Equal(t, "n", vars.Body.Variables[0].Name)
	assert.Equal(t, "4", vars.Body.Variables[0].Value)
	assert.Equal(t, target.TypeInt, vars.Body.Variables[0].Type)
	counter := vars.Body.Variables[1]
	assert.Equal(t, "app.Counter@1", counter.Value)
	assert.NotZero(t, counter.VariablesReference)
	assert.Equal(t, "this", vars.Body.Variables[2].Name)
	assert.Equal(t, counter.VariablesReference, vars.Body.Variables[2].VariablesReference)

	s.send(&dap.VariablesRequest{Request: s.request("variables"), Arguments: dap.VariablesArguments{VariablesReference: counter.VariablesReference}})
	fields, ok := s.read().(*dap.VariablesResponse)
	require.True(t, ok, "expected VariablesResponse")
	require.Len(t, fields.Body.Variables, 1)
	assert.Equal(t, "count", fields.Body.Variables[0].Name)
	assert.Equal(t, "3", fields.Body.Variables[0].Value)

	s.send(&dap.ScopesRequest{Request: s.request("scopes"), Arguments: dap.ScopesArguments{FrameId: 42}})
	_, ok = s.read().(*dap.ErrorResponse)
	assert.True(t, ok, "expected ErrorResponse for an unknown frame")

	s.disconnect()
}

func TestDAPServer_Evaluate(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	resp, ok := s.evaluate("n * 2", mainFrame, "repl").(*dap.EvaluateResponse)
	require.True(t, ok, "expected EvaluateResponse")
	assert.Equal(t, "8", resp.Body.Result)
	assert.Equal(t, target.TypeInt, resp.Body.Type)

	resp, ok = s.evaluate("counter", 0, "hover").(*dap.EvaluateResponse)
	require.True(t, ok, "expected EvaluateResponse")
	assert.Equal(t, "app.Counter@1", resp.Body.Result)

	resp, ok = s.evaluate("counter", mainFrame, "watch").(*dap.EvaluateResponse)
	require.True(t, ok, "expected EvaluateResponse")
	assert.NotZero(t, resp.Body.VariablesReference)

	failed, ok := s.evaluate("missing + 1", mainFrame, "repl").(*dap.ErrorResponse)
	require.True(t, ok, "expected ErrorResponse")
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Message, "'missing'")
	assert.Contains(t, failed.Message, "CannotFindVariable")

	failed, ok = s.evaluate("1 + 1", 2000, "repl").(*dap.ErrorResponse)
	require.True(t, ok, "expected ErrorResponse")
	assert.Contains(t, failed.Message, "ThreadNotSuspended")

	s.disconnect()
}

func TestDAPServer_SetVariable(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	s.send(&dap.ScopesRequest{Request: s.request("scopes"), Arguments: dap.ScopesArguments{FrameId: mainFrame}})
	scopes, ok := s.read().(*dap.ScopesResponse)
	require.True(t, ok, "expected ScopesResponse")
	ref := scopes.Body.Scopes[0].VariablesReference

	s.send(&dap.SetVariableRequest{
		Request:   s.request("setVariable"),
		Arguments: dap.SetVariableArguments{VariablesReference: ref, Name: "n", Value: "n + 37"},
	})
	resp, ok := s.read().(*dap.SetVariableResponse)
	require.True(t, ok, "expected SetVariableResponse")
	assert.Equal(t, "41", resp.Body.Value)
	n, _ := s.debuggee.Frame(t, 1, 0).Local("n")
	assert.Equal(t, target.Int(41), n)

	s.send(&dap.SetVariableRequest{
		Request:   s.request("setVariable"),
		Arguments: dap.SetVariableArguments{VariablesReference: ref, Name: "n", Value: `"text"`},
	})
	failed, ok := s.read().(*dap.ErrorResponse)
	require.True(t, ok, "expected ErrorResponse")
	assert.Contains(t, failed.Message, "ErrorsInCode")

	s.disconnect()
}

func TestDAPServer_UnsupportedRequest(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	s.send(&dap.PauseRequest{Request: s.request("pause"), Arguments: dap.PauseArguments{ThreadId: 1}})
	failed, ok := s.read().(*dap.ErrorResponse)
	require.True(t, ok, "expected ErrorResponse")
	assert.Equal(t, "pause", failed.Command)
	s.disconnect()
}
