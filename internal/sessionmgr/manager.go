// Package sessionmgr implements the Session Manager: a registry of
// Persistent Sessions layered over a Connection Pool, applying policy and
// fanning out session lifecycle events to registry removal.
//
// Grounded on the teacher's internal/session.Manager (registry shape,
// Create/Get/Close/List/SessionCount) generalized from local-PTY-or-SSH
// sessions to SSH-only Persistent Sessions bound to sshpool transports, and
// on internal/security.CommandFilter for policy (see policy.go for the
// precedence change spec.md §4.4 requires).
package sessionmgr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/events"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/pssession"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/shellfmt"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/sshpool"
)

// Config bounds the registry: how many sessions may be live at once and the
// per-session defaults new sessions inherit unless overridden per call.
type Config struct {
	MaxSessions       int
	SessionDefaults   pssession.Config
	CloseWaitTimeout  time.Duration
	EventStreamDepth  int
}

// DefaultConfig mirrors spec.md §5's maxSessions bound and per-session
// timeout defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions:      100,
		SessionDefaults:  pssession.DefaultConfig(),
		CloseWaitTimeout: 5 * time.Second,
		EventStreamDepth: 16,
	}
}

// CreateSessionParams is the input to CreateSession, named the way
// spec.md §4.4's createSession signature names its parameters.
type CreateSessionParams struct {
	ID             string
	Host           string
	User           string
	Port           int
	KeyPath        string
	KeyPassphrase  string
	Password       string // alternative to KeyPath, mainly for tests and agentless hosts
	Type           pssession.Type
	Mode           pssession.Mode
	ShellKind      shellfmt.Kind
	SessionTimeout time.Duration // 0 = use Config.SessionDefaults.SessionTimeout
}

// Manager owns a Pool, a session registry, and configured policy. It is the
// data-flow center spec.md §2 describes: callers reach Sessions and one-shot
// exec exclusively through it.
type Manager struct {
	pool   *sshpool.Pool
	policy *Policy
	cfg    Config
	clock  ports.Clock

	mu       sync.RWMutex
	sessions map[string]*pssession.Session
}

// New constructs a Manager. policy may be nil, in which case every command
// is allowed.
func New(pool *sshpool.Pool, policy *Policy, cfg Config, clock ports.Clock) *Manager {
	return &Manager{
		pool:     pool,
		policy:   policy,
		cfg:      cfg,
		clock:    clock,
		sessions: make(map[string]*pssession.Session),
	}
}

// CreateSession acquires a transport, constructs and initializes a
// Persistent Session, registers it, and subscribes to its lifecycle events
// for idempotent registry removal (spec.md §4.4).
func (m *Manager) CreateSession(ctx context.Context, p CreateSessionParams) (*pssession.Session, error) {
	if p.ID == "" {
		p.ID = generateSessionID()
	}
	if p.Port == 0 {
		p.Port = 22
	}
	if p.Type == "" {
		p.Type = pssession.Interactive
	}
	if p.Mode == "" {
		p.Mode = pssession.Normal
	}
	if p.ShellKind == "" {
		p.ShellKind = shellfmt.Bash
	}

	m.mu.Lock()
	if _, exists := m.sessions[p.ID]; exists {
		m.mu.Unlock()
		return nil, errs.New(errs.Duplicate, "session %s already exists", p.ID)
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, errs.New(errs.LimitExceeded, "max sessions reached (%d)", m.cfg.MaxSessions)
	}
	m.mu.Unlock()

	client, err := m.pool.Acquire(p.User, p.Host, p.Port, p.KeyPath, sshpool.AuthConfig{
		KeyPath:       p.KeyPath,
		KeyPassphrase: p.KeyPassphrase,
		Password:      p.Password,
	})
	if err != nil {
		return nil, err
	}

	sessCfg := m.cfg.SessionDefaults
	if p.SessionTimeout > 0 {
		sessCfg.SessionTimeout = p.SessionTimeout
	}

	stream := events.NewStream(m.cfg.EventStreamDepth)
	sess, err := pssession.New(p.ID, p.Host, p.User, p.Port, p.Type, p.Mode, p.ShellKind, client, m.clock, sessCfg, stream)
	if err != nil {
		return nil, err
	}
	if m.policy != nil {
		sess.WithFilter(m.policy.Allows)
	}

	if err := sess.Initialize(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, exists := m.sessions[p.ID]; exists {
		m.mu.Unlock()
		sess.Close()
		return nil, errs.New(errs.Duplicate, "session %s already exists", p.ID)
	}
	m.sessions[p.ID] = sess
	m.mu.Unlock()

	go m.watchSession(p.ID, sess)

	return sess, nil
}

// watchSession drains a Session's lifecycle stream and idempotently removes
// it from the registry on Closed. events.Stream.Emit blocks for Closed, so
// delivery can't be lost to a full buffer, but removal still tolerates
// repeats since CloseSession's own wait can race this loop for the same
// event.
func (m *Manager) watchSession(id string, sess *pssession.Session) {
	for ev := range sess.Events().C() {
		if ev.Kind == events.Closed {
			m.mu.Lock()
			if cur, ok := m.sessions[id]; ok && cur == sess {
				delete(m.sessions, id)
			}
			m.mu.Unlock()
			return
		}
	}
}

// GetSession returns the live Session for id, or NotFound.
func (m *Manager) GetSession(id string) (*pssession.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "session %s not found", id)
	}
	return sess, nil
}

// ListSessions returns a snapshot of every registered session's Info.
func (m *Manager) ListSessions() []pssession.Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]pssession.Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Info())
	}
	return out
}

// ExecuteInSession dispatches cmd on the named session. Policy is enforced
// by the Filter installed on the session at CreateSession time.
func (m *Manager) ExecuteInSession(ctx context.Context, id, cmd string, timeout time.Duration) (pssession.Result, error) {
	sess, err := m.GetSession(id)
	if err != nil {
		return pssession.Result{}, err
	}
	return sess.ExecuteCommand(ctx, cmd, timeout, sess.Info().Mode == pssession.Raw)
}

// GetSessionOutput returns the named session's buffered output.
func (m *Manager) GetSessionOutput(id string, lines *int, clear bool) ([]string, error) {
	sess, err := m.GetSession(id)
	if err != nil {
		return nil, err
	}
	return sess.GetBufferedOutput(lines, clear)
}

// CloseSession closes and deregisters id, waiting up to CloseWaitTimeout for
// the Closed event to land. Returns false if id was never registered.
func (m *Manager) CloseSession(id string) bool {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	done := make(chan struct{})
	go func() {
		for ev := range sess.Events().C() {
			if ev.Kind == events.Closed {
				close(done)
				return
			}
		}
	}()

	sess.Close()

	select {
	case <-done:
	case <-time.After(m.cfg.CloseWaitTimeout):
	}

	m.mu.Lock()
	if cur, exists := m.sessions[id]; exists && cur == sess {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	return true
}

// CloseAll closes every registered session and empties the registry.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.CloseSession(id)
		}(id)
	}
	wg.Wait()
}

// ConnectionCount delegates to the underlying Pool.
func (m *Manager) ConnectionCount() int {
	return m.pool.Count()
}

// SessionCount returns the number of registered sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func generateSessionID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "sess_" + hex.EncodeToString(b)
}
