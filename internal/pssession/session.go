package pssession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/events"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/shellfmt"
)

// Filter inspects a command string before it is enqueued. A rejecting
// filter causes ExecuteCommand to fail with PolicyDenied without touching
// the channel or the history (spec.md §4.3.6).
type Filter func(cmd string) bool

// Session owns exactly one interactive shell channel on a transport and
// exposes a linearized command-execution interface over it (spec.md §4.3).
type Session struct {
	id   string
	host string
	user string
	port int

	typ       Type
	mode      Mode
	shellKind shellfmt.Kind
	formatter shellfmt.Formatter
	delimStem string

	cfg   Config
	clock ports.Clock
	events *events.Stream

	client *ssh.Client

	// infoMu guards the fields also exposed via Info/History; all of them
	// are written exclusively by the run loop and read by any goroutine
	// calling Info/History.
	infoMu       sync.Mutex
	createdAt    time.Time
	lastActivity time.Time
	isActive     bool
	history      []string

	buffer *outputBuffer
	filter Filter

	channel shellTransport

	submitCh      chan *submitMsg
	closeRequest  sync.Once
	closeRequestCh chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc

	initMu      sync.Mutex
	initialized bool
}

type submitMsg struct {
	req  *commandRequest
	ackCh chan error
}

// New constructs a Session bound to an already-acquired transport. It does
// not open the shell channel; call Initialize for that.
func New(id, host, user string, port int, typ Type, mode Mode, shellKind shellfmt.Kind, client *ssh.Client, clock ports.Clock, cfg Config, stream *events.Stream) (*Session, error) {
	formatter, err := shellfmt.New(shellKind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:             id,
		host:           host,
		user:           user,
		port:           port,
		typ:            typ,
		mode:           mode,
		shellKind:      shellKind,
		formatter:      formatter,
		delimStem:      randomStem(),
		cfg:            cfg,
		clock:          clock,
		events:         stream,
		client:         client,
		buffer:         newOutputBuffer(cfg.MaxBufferSize, cfg.BufferTrimTo),
		submitCh:       make(chan *submitMsg),
		closeRequestCh: make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// WithFilter installs a command filter. Not safe to call concurrently with
// ExecuteCommand.
func (s *Session) WithFilter(f Filter) *Session {
	s.filter = f
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Initialize opens the shell channel, installs the byte consumers, arms the
// keep-alive ticker and inactivity timer, and waits out a startup-settle
// delay before returning. Double-initialize is a no-op.
func (s *Session) Initialize() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}

	channel, err := openShellChannel(s.client)
	if err != nil {
		return errs.Wrap(errs.ShellFailure, err, "open shell channel for session %s", s.id)
	}
	s.channel = channel

	now := s.clock.Now()
	s.infoMu.Lock()
	s.createdAt = now
	s.lastActivity = now
	s.isActive = true
	s.infoMu.Unlock()

	s.initialized = true
	go s.loop()

	settle := s.clock.NewTimer(s.cfg.StartupSettleDelay)
	<-settle.C()
	return nil
}

// Info returns a deep-copied, read-only snapshot of session state.
func (s *Session) Info() Info {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return Info{
		ID:           s.id,
		Host:         s.host,
		User:         s.user,
		Port:         s.port,
		Type:         s.typ,
		Mode:         s.mode,
		ShellKind:    s.shellKind,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		IsActive:     s.isActive,
	}
}

// History returns a copy of the appended command history.
func (s *Session) History() []string {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

// ExecuteCommand validates and enqueues cmd. Background sessions return a
// synthetic result immediately; interactive sessions suspend until framed
// completion, per-command timeout, or session close (spec.md §4.3.2).
func (s *Session) ExecuteCommand(ctx context.Context, cmd string, timeout time.Duration, raw bool) (Result, error) {
	if cmd == "" {
		return Result{}, errs.New(errs.InvalidArgument, "command must not be empty")
	}
	if timeout <= 0 {
		return Result{}, errs.New(errs.InvalidArgument, "timeout must be > 0")
	}
	if s.filter != nil && !s.filter(cmd) {
		return Result{}, errs.New(errs.PolicyDenied, "command rejected by policy")
	}

	req := newCommandRequest(newCommandID(), cmd, timeout, raw)
	msg := &submitMsg{req: req, ackCh: make(chan error, 1)}

	select {
	case s.submitCh <- msg:
	case <-s.ctx.Done():
		return Result{}, errs.New(errs.SessionInactive, "session %s is not active", s.id)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case err := <-msg.ackCh:
		if err != nil {
			return Result{}, err
		}
	case <-s.ctx.Done():
		return Result{}, errs.New(errs.SessionInactive, "session %s is not active", s.id)
	}

	select {
	case o := <-req.resultCh:
		return o.result, o.err
	case <-s.ctx.Done():
		return Result{}, errs.New(errs.SessionInactive, "session %s is not active", s.id)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// GetBufferedOutput returns a copy of the background output buffer. lines
// nil means "all"; a non-nil value <= 0 is InvalidArgument.
func (s *Session) GetBufferedOutput(lines *int, clear bool) ([]string, error) {
	if lines != nil && *lines <= 0 {
		return nil, errs.New(errs.InvalidArgument, "lines must be positive")
	}
	return s.buffer.snapshot(lines, clear), nil
}

// Events returns the session's lifecycle event stream.
func (s *Session) Events() *events.Stream { return s.events }

// Close cancels the timers, drains the queue with SessionInactive, and ends
// the shell channel. Safe to call more than once.
func (s *Session) Close() {
	s.closeRequest.Do(func() {
		close(s.closeRequestCh)
	})
}

func randomStem() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func newCommandID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return "cmd_" + hex.EncodeToString(b)
}

func exitCodePtr(code int) *int {
	c := code
	return &c
}

func trimFramedStdout(raw string) string {
	lines := strings.Split(raw, "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
