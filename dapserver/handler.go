// Copyright © 2018 The ELPS authors

package dapserver

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/google/go-dap"
	"github.com/luthersystems/fragmenteval/diagnostic"
	"github.com/luthersystems/fragmenteval/fragment"
	"github.com/luthersystems/fragmenteval/target"
	"github.com/luthersystems/fragmenteval/target/sim"
	"github.com/sirupsen/logrus"
)

// Error ids of failed requests.
const (
	errUnsupported = 1000 + iota
	errNoFrame
	errNoVariables
	errEvaluation
)

// handler dispatches incoming DAP messages to the appropriate method.
type handler struct {
	server *Server

	mu         sync.Mutex
	refs       map[int]varRef
	frameRefs  map[int]int
	objectRefs map[int64]int
}

func newHandler(s *Server) *handler {
	return &handler{
		server:     s,
		refs:       make(map[int]varRef),
		frameRefs:  make(map[int]int),
		objectRefs: make(map[int64]int),
	}
}

// send sends a DAP message and logs any write error.
func (h *handler) send(msg dap.Message) {
	if err := h.server.send(msg); err != nil {
		h.server.log.WithError(err).Warn("dap: send error")
	}
}

func (h *handler) handle(msg dap.Message) {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		h.onInitialize(req)
	case *dap.AttachRequest:
		h.onAttach(req)
	case *dap.ConfigurationDoneRequest:
		h.onConfigurationDone(req)
	case *dap.ThreadsRequest:
		h.onThreads(req)
	case *dap.StackTraceRequest:
		h.onStackTrace(req)
	case *dap.ScopesRequest:
		h.onScopes(req)
	case *dap.VariablesRequest:
		h.onVariables(req)
	case *dap.EvaluateRequest:
		h.onEvaluate(req)
	case *dap.SetVariableRequest:
		h.onSetVariable(req)
	case *dap.DisconnectRequest:
		h.onDisconnect(req)
	case dap.RequestMessage:
		r := req.GetRequest()
		h.server.log.WithField("command", r.Command).Debug("dap: unsupported request")
		h.sendError(r, errUnsupported, "unsupported request %q", r.Command)
	default:
		h.server.log.Debugf("dap: unhandled message type: %T", msg)
	}
}

func (h *handler) onInitialize(req *dap.InitializeRequest) {
	resp := &dap.InitializeResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
		SupportsClipboardContext:         true,
		SupportsSetVariable:              true,
	}
	h.send(resp)
	h.send(&dap.InitializedEvent{Event: h.newEvent("initialized")})
}

// onAttach acknowledges the attach and reports the suspended threads of
// the snapshot as stopped.
func (h *handler) onAttach(req *dap.AttachRequest) {
	resp := &dap.AttachResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
	for _, t := range h.server.proc.Threads() {
		if !t.Suspended() {
			continue
		}
		evt := &dap.StoppedEvent{Event: h.newEvent("stopped")}
		evt.Body.Reason = "pause"
		evt.Body.ThreadId = t.ID()
		h.send(evt)
	}
}

func (h *handler) onConfigurationDone(req *dap.ConfigurationDoneRequest) {
	resp := &dap.ConfigurationDoneResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
}

func (h *handler) onThreads(req *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Threads = []dap.Thread{}
	for _, t := range h.server.proc.Threads() {
		resp.Body.Threads = append(resp.Body.Threads, dap.Thread{Id: t.ID(), Name: t.Name()})
	}
	h.send(resp)
}

func (h *handler) onStackTrace(req *dap.StackTraceRequest) {
	t, ok := h.server.proc.Thread(req.Arguments.ThreadId)
	if !ok {
		h.sendError(&req.Request, errNoFrame, "no thread %d", req.Arguments.ThreadId)
		return
	}
	frames := []dap.StackFrame{}
	for i := 0; ; i++ {
		f, ok := t.Frame(i)
		if !ok {
			break
		}
		frames = append(frames, translateFrame(f))
	}

	resp := &dap.StackTraceResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.TotalFrames = len(frames)
	start := req.Arguments.StartFrame
	if start > len(frames) {
		start = len(frames)
	}
	end := len(frames)
	if req.Arguments.Levels > 0 && start+req.Arguments.Levels < end {
		end = start + req.Arguments.Levels
	}
	resp.Body.StackFrames = frames[start:end]
	h.send(resp)
}

func (h *handler) onScopes(req *dap.ScopesRequest) {
	if _, _, _, ok := h.findFrame(req.Arguments.FrameId); !ok {
		h.sendError(&req.Request, errNoFrame, "no frame %d", req.Arguments.FrameId)
		return
	}
	resp := &dap.ScopesResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Scopes = []dap.Scope{{
		Name:               "Locals",
		PresentationHint:   "locals",
		VariablesReference: h.frameRef(req.Arguments.FrameId),
	}}
	h.send(resp)
}

func (h *handler) onVariables(req *dap.VariablesRequest) {
	ref, ok := h.lookupRef(req.Arguments.VariablesReference)
	if !ok {
		h.sendError(&req.Request, errNoVariables, "unknown variables reference %d", req.Arguments.VariablesReference)
		return
	}
	resp := &dap.VariablesResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Variables = []dap.Variable{}
	if ref.frame != 0 {
		if f, _, _, ok := h.findFrame(ref.frame); ok {
			resp.Body.Variables = h.frameVariables(f)
		}
	} else {
		resp.Body.Variables = h.objectVariables(ref.object)
	}
	h.send(resp)
}

func (h *handler) onEvaluate(req *dap.EvaluateRequest) {
	args := req.Arguments
	frameID := args.FrameId
	if frameID == 0 {
		frameID = h.defaultFrame()
	}
	f, thread, depth, ok := h.findFrame(frameID)
	if !ok {
		h.sendError(&req.Request, errNoFrame, "no frame %d to evaluate in", args.FrameId)
		return
	}
	frag := fragment.New(args.Expression, f.Scope())
	frag.Rendering = args.Context == "hover" || args.Context == "clipboard"
	v, err := h.evaluate(frag, f, thread, depth)
	if err != nil {
		h.sendError(&req.Request, errEvaluation, "%s", h.describe(frag, err))
		return
	}

	resp := &dap.EvaluateResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	if s, ok := v.(target.String); ok && frag.Rendering {
		resp.Body.Result = string(s)
	} else {
		resp.Body.Result = formatValue(h.server.proc, v)
	}
	resp.Body.Type = valueType(v)
	resp.Body.VariablesReference = h.objectRef(v)
	h.send(resp)
}

// onSetVariable assigns a variable of a frame by evaluating an assignment
// fragment, which writes the new value back to the frame.
func (h *handler) onSetVariable(req *dap.SetVariableRequest) {
	args := req.Arguments
	ref, ok := h.lookupRef(args.VariablesReference)
	if !ok || ref.frame == 0 {
		h.sendError(&req.Request, errNoVariables, "cannot set variables of reference %d", args.VariablesReference)
		return
	}
	f, thread, depth, ok := h.findFrame(ref.frame)
	if !ok {
		h.sendError(&req.Request, errNoFrame, "no frame %d", ref.frame)
		return
	}
	frag := fragment.New(fmt.Sprintf("%s = %s\n%s", args.Name, args.Value, args.Name), f.Scope())
	v, err := h.evaluate(frag, f, thread, depth)
	if err != nil {
		h.sendError(&req.Request, errEvaluation, "%s", h.describe(frag, err))
		return
	}
	resp := &dap.SetVariableResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Value = formatValue(h.server.proc, v)
	resp.Body.Type = valueType(v)
	resp.Body.VariablesReference = h.objectRef(v)
	h.send(resp)
}

func (h *handler) evaluate(frag *fragment.CodeFragment, f *sim.Frame, thread int, depth int) (target.Value, error) {
	ec, err := h.server.snap.ExecutionContext(h.server.proc, thread, depth)
	if err != nil {
		return nil, err
	}
	log := h.server.log.WithFields(logrus.Fields{"thread": thread, "frame": f.ID()})
	log.WithField("fragment", frag.Text).Debug("dap: evaluate")
	return h.server.eval.Evaluate(h.server.ctx, frag, f.Position(), ec)
}

// describe renders an evaluation error for display in the client.
func (h *handler) describe(frag *fragment.CodeFragment, err error) string {
	r := &diagnostic.Renderer{
		Color:        diagnostic.ColorNever,
		SourceReader: diagnostic.FragmentSource(frag.FileName(), frag.Text),
	}
	var buf bytes.Buffer
	if rerr := r.RenderError(&buf, err); rerr != nil {
		return err.Error()
	}
	return strings.TrimSpace(buf.String())
}

func (h *handler) onDisconnect(req *dap.DisconnectRequest) {
	resp := &dap.DisconnectResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
	h.send(&dap.TerminatedEvent{Event: h.newEvent("terminated")})
	h.server.close()
}

// findFrame locates the frame with the given id.
func (h *handler) findFrame(id int) (f *sim.Frame, thread int, depth int, ok bool) {
	for _, t := range h.server.proc.Threads() {
		st, ok := h.server.proc.Thread(t.ID())
		if !ok {
			continue
		}
		for i := 0; ; i++ {
			f, ok := st.Frame(i)
			if !ok {
				break
			}
			if f.ID() == id {
				return f, t.ID(), i, true
			}
		}
	}
	return nil, 0, 0, false
}

// defaultFrame returns the top frame of the first suspended thread.
func (h *handler) defaultFrame() int {
	for _, t := range h.server.proc.Threads() {
		if frames := t.Frames(); t.Suspended() && len(frames) > 0 {
			return frames[0].ID()
		}
	}
	return 0
}

func (h *handler) frameRef(frame int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ref, ok := h.frameRefs[frame]; ok {
		return ref
	}
	ref := len(h.refs) + 1
	h.refs[ref] = varRef{frame: frame}
	h.frameRefs[frame] = ref
	return ref
}

// objectRef returns the variables reference of an object value, or zero
// for values without fields.
func (h *handler) objectRef(v target.Value) int {
	o, ok := v.(target.Object)
	if !ok || len(h.server.proc.Fields(o)) == 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ref, ok := h.objectRefs[o.ID]; ok {
		return ref
	}
	ref := len(h.refs) + 1
	h.refs[ref] = varRef{object: o}
	h.objectRefs[o.ID] = ref
	return ref
}

func (h *handler) lookupRef(ref int) (varRef, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.refs[ref]
	return r, ok
}

// --- helpers ---

func (h *handler) sendError(req *dap.Request, id int, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	resp := &dap.ErrorResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Success = false
	resp.Message = msg
	resp.Body.Error = &dap.ErrorMessage{Id: id, Format: msg, ShowUser: true}
	h.send(resp)
}

func (h *handler) newResponse(reqSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.server.nextSeq(), Type: "response"},
		RequestSeq:      reqSeq,
		Success:         true,
		Command:         command,
	}
}

func (h *handler) newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.server.nextSeq(), Type: "event"},
		Event:           event,
	}
}
