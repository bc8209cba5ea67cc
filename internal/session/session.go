// Package session implements the per-connection terminal lifecycle
// described in spec.md §4.3 (SessionFSM): the auth gate, the lazy
// exec-start triggered by the first post-auth resize, and the error
// routing that closes the WebSocket with the appropriate code.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sealos/tty-agent/internal/execbridge"
	"github.com/sealos/tty-agent/internal/protocol"
	"github.com/sealos/tty-agent/internal/ticket"
)

// State is one node of the SessionFSM.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateAuthed
	StateStarting
	StateStarted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateAuthed:
		return "authed"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WebSocket close codes used by the FSM (mirrors gorilla/websocket's
// constants without importing the transport package into this one).
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalErr     = 1011
)

// Size is a terminal window dimension pair.
type Size struct {
	Cols int
	Rows int
}

// Deps are the collaborators a Session needs, owned by the gateway that
// constructs it.
type Deps struct {
	Tickets     *ticket.Store
	Bridge      *execbridge.Bridge
	Logger      *logrus.Logger
	AuthTimeout time.Duration
}

// Transport is the thin send/close surface a Session drives; WsGateway
// supplies the concrete WebSocket-backed implementation.
type Transport struct {
	SendFrame  func(protocol.ServerFrame) error
	SendBinary func([]byte) error
	Close      func(code int, reason string)
}

// Session is the per-connection state machine. All exported methods are
// safe for concurrent use: the control dispatcher, the auth timer, and
// the ExecBridge status callback all call into it from different
// goroutines.
type Session struct {
	ID   string
	Peer ticket.IssuerMeta

	deps      Deps
	transport Transport

	mu    sync.Mutex
	state State

	kubeconfig string
	target     ticket.ExecTarget

	pendingSize *Size

	authTimer *time.Timer

	stdinCh chan []byte
	sink    *execbridge.ResizableSink
	handle  *execbridge.Handle

	cleanupOnce sync.Once
	startedAt   time.Time
}

// New constructs a Session in state connecting. Call Start once the
// WebSocket upgrade has succeeded.
func New(id string, deps Deps, transport Transport, peer ticket.IssuerMeta) *Session {
	return &Session{
		ID:        id,
		Peer:      peer,
		deps:      deps,
		transport: transport,
		state:     StateConnecting,
		stdinCh:   make(chan []byte, 64),
		startedAt: time.Now(),
	}
}

// Start transitions connecting→ready, emits the ready frame, and arms
// the auth timeout. If queryTicket is non-empty it is consumed
// immediately, per spec.md §4.3's "ticket replay hardening" note.
func (s *Session) Start(queryTicket string) {
	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()

	s.emit(protocol.Ready())
	s.armAuthTimeout()

	if queryTicket != "" {
		s.authenticate(queryTicket)
	}
}

func (s *Session) armAuthTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.authTimer = time.AfterFunc(s.deps.AuthTimeout, s.onAuthTimeout)
}

func (s *Session) onAuthTimeout() {
	s.mu.Lock()
	if s.state == StateAuthed || s.state == StateStarting || s.state == StateStarted || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.fatal("Auth timeout: no ticket presented.", ClosePolicyViolation)
}

// HandleText parses and dispatches one client text (control) frame.
func (s *Session) HandleText(raw []byte) {
	frame, err := protocol.ParseClientFrame(raw)
	if err != nil {
		s.emit(protocol.Error(err.Error()))
		return
	}

	switch frame.Type {
	case protocol.TypeAuth:
		s.authenticate(frame.Ticket)
	case protocol.TypePing:
		s.emit(protocol.Pong())
	case protocol.TypeResize:
		s.handleResize(frame.Cols, frame.Rows)
	case protocol.TypeStdin:
		s.handleStdin([]byte(frame.Data))
	}
}

// HandleBinary dispatches one raw binary frame as stdin bytes, subject
// to the same auth gate as the "stdin" text frame.
func (s *Session) HandleBinary(data []byte) {
	s.handleStdin(data)
}

func (s *Session) handleStdin(data []byte) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateConnecting || state == StateReady {
		s.fatal("Not authenticated.", ClosePolicyViolation)
		return
	}
	if state != StateStarted {
		// authed/starting: exec not attached yet, silently drop — the
		// client has no stdin target until started.
		return
	}

	select {
	case s.stdinCh <- data:
	default:
		s.deps.Logger.WithField("session", s.ID).Warn("stdin channel full, dropping chunk")
	}
}

func (s *Session) authenticate(ticketID string) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateClosed {
		return
	}
	if state == StateAuthed || state == StateStarting || state == StateStarted {
		// Idempotent re-auth: a second auth frame re-emits authed without
		// attempting another consumption (spec.md §4.3).
		s.emit(protocol.Authed())
		return
	}

	kubeconfig, target, err := s.deps.Tickets.Consume(ticketID, s.Peer)
	if err != nil {
		s.fatal(err.Error(), ClosePolicyViolation)
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		// The connection closed while Consume was in flight: the ticket
		// is already spent, but there is nothing left to authenticate —
		// don't resurrect a torn-down session back into StateAuthed.
		s.mu.Unlock()
		return
	}
	s.kubeconfig = kubeconfig
	s.target = target
	s.state = StateAuthed
	if s.authTimer != nil {
		s.authTimer.Stop()
	}
	pending := s.pendingSize
	s.mu.Unlock()

	s.emit(protocol.Authed())

	if pending != nil {
		s.beginExec(*pending)
	}
}

func (s *Session) handleResize(cols, rows int) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateConnecting, StateReady:
		s.fatal("Not authenticated.", ClosePolicyViolation)
		return

	case StateAuthed:
		s.mu.Lock()
		s.pendingSize = &Size{Cols: cols, Rows: rows}
		s.mu.Unlock()
		s.beginExec(Size{Cols: cols, Rows: rows})

	case StateStarting:
		s.mu.Lock()
		s.pendingSize = &Size{Cols: cols, Rows: rows}
		s.mu.Unlock()

	case StateStarted:
		s.mu.Lock()
		sink := s.sink
		s.mu.Unlock()
		if sink != nil {
			sink.Resize(cols, rows)
		}
	}
}

// beginExec transitions authed→starting and asks ExecBridge to attach.
// Only the first resize after auth reaches this; subsequent calls are
// no-ops because the state is no longer authed.
func (s *Session) beginExec(initial Size) {
	s.mu.Lock()
	if s.state != StateAuthed {
		s.mu.Unlock()
		return
	}
	s.state = StateStarting
	kubeconfig := s.kubeconfig
	target := s.target
	s.mu.Unlock()

	sink := execbridge.NewResizableSink(s.transport.SendBinary, initial.Cols, initial.Rows)

	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()

	handle, err := s.deps.Bridge.Start(
		context.Background(),
		[]byte(kubeconfig),
		target,
		s.stdinCh,
		sink,
		s.onExecStatus,
	)
	if err != nil {
		s.fatal(err.Error(), ClosePolicyViolation)
		return
	}

	s.mu.Lock()
	if s.state != StateStarting {
		// Session was closed while attaching; tear the handle straight down.
		s.mu.Unlock()
		handle.Close()
		return
	}
	s.state = StateStarted
	s.handle = handle
	pending := s.pendingSize
	s.mu.Unlock()

	s.emit(protocol.Started())

	if pending != nil {
		sink.Resize(pending.Cols, pending.Rows)
	}
}

// onExecStatus is ExecBridge's status callback (spec.md §4.4).
func (s *Session) onExecStatus(status execbridge.Status) {
	encoded, marshalErr := json.Marshal(status)
	if marshalErr == nil {
		if raw, err := protocol.DecodeStatusPreservingNumbers(encoded); err == nil {
			s.emit(protocol.Status(raw))
		}
	}

	switch status.Status {
	case execbridge.StatusSuccess:
		s.closeSession(CloseNormal, "exec finished")
	default:
		msg := status.Message
		if msg == "" {
			msg = "exec failed"
		}
		s.emit(protocol.Error(msg))
		s.closeSession(CloseInternalErr, "exec failed")
	}
}

// fatal sends an error frame then closes with the given code.
func (s *Session) fatal(message string, code int) {
	s.emit(protocol.Error(message))
	s.closeSession(code, message)
}

func (s *Session) closeSession(code int, reason string) {
	s.cleanup()
	s.transport.Close(code, reason)
}

// cleanup tears down exec state and transitions to closed. Idempotent.
func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		if s.authTimer != nil {
			s.authTimer.Stop()
		}
		handle := s.handle
		s.handle = nil
		s.mu.Unlock()

		if handle != nil {
			handle.Close()
		}
	})
}

// Close is called by WsGateway on peer close or heartbeat failure.
func (s *Session) Close() {
	s.cleanup()
}

func (s *Session) emit(frame protocol.ServerFrame) {
	if err := s.transport.SendFrame(frame); err != nil {
		s.deps.Logger.WithError(err).WithField("session", s.ID).Debug("send frame failed")
	}
}

