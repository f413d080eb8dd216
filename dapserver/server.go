// Copyright © 2018 The ELPS authors

// Package dapserver serves a debuggee snapshot to editors over the Debug
// Adapter Protocol.  A session inspects the suspended threads and evaluates
// code fragments in their frames.  Sessions run over a TCP connection or
// over the standard streams of the adapter process.
package dapserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/luthersystems/fragmenteval/evaluator"
	"github.com/luthersystems/fragmenteval/target/sim"
	"github.com/sirupsen/logrus"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger of the server.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Server) {
		s.log = log
	}
}

// Server answers the requests of one DAP client.  Each evaluate or
// setVariable request runs the evaluator against a frame of the snapshot
// debuggee.
type Server struct {
	proc *sim.Process
	snap *sim.Snapshot
	eval *evaluator.Evaluator
	log  *logrus.Entry

	// ctx ends with the session.  Evaluations in progress observe it.
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	seq int
	out io.Writer
}

// New returns a server over proc.  The snapshot proc was loaded from names
// the debuggee in attach responses.
func New(proc *sim.Process, snap *sim.Snapshot, eval *evaluator.Evaluator, opts ...Option) *Server {
	s := &Server{proc: proc, snap: snap, eval: eval}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// transport carries the messages of a session.  release is nil when the
// caller keeps ownership of the streams.
type transport struct {
	in      *bufio.Reader
	out     io.Writer
	release func() error
}

// ServeConn runs a session on conn and closes it when the session ends.
func (s *Server) ServeConn(conn io.ReadWriteCloser) error {
	return s.serve(transport{in: bufio.NewReader(conn), out: conn, release: conn.Close})
}

// ServeStdio runs a session on r and w, typically the standard streams of
// an adapter process started by an editor.
func (s *Server) ServeStdio(r io.Reader, w io.Writer) error {
	return s.serve(transport{in: bufio.NewReader(r), out: w})
}

// ServeListener runs a session with the first client accepted from ln.
func (s *Server) ServeListener(ln net.Listener) error {
	s.log.WithField("address", ln.Addr().String()).Info("waiting for DAP client")
	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept DAP client: %w", err)
	}
	s.log.WithField("client", conn.RemoteAddr().String()).Info("DAP client connected")
	return s.ServeConn(conn)
}

// ServeTCP runs a session with the first client connecting to addr.
func (s *Server) ServeTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for DAP client: %w", err)
	}
	defer ln.Close() //nolint:errcheck
	return s.ServeListener(ln)
}

// serve dispatches requests until the client disconnects or closes its
// end of the transport.
func (s *Server) serve(t transport) error {
	defer s.cancel()
	if t.release != nil {
		defer t.release() //nolint:errcheck
	}
	s.mu.Lock()
	s.out = t.out
	s.mu.Unlock()

	h := newHandler(s)
	for s.ctx.Err() == nil {
		msg, err := dap.ReadProtocolMessage(t.in)
		switch {
		case s.ctx.Err() != nil || errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read DAP message: %w", err)
		}
		h.handle(msg)
	}
	return nil
}

func (s *Server) send(msg dap.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dap.WriteProtocolMessage(s.out, msg)
}

func (s *Server) nextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// close ends the session after the current request.
func (s *Server) close() {
	s.cancel()
}
