// Package sshpool hands out reusable SSH transports keyed by
// (username, host, port), amortizing handshake cost across sessions that
// target the same connection. Grounded on the teacher's internal/ssh.Pool
// and internal/ssh.PoolManager, restructured around a single shared
// transport per key instead of a free pool of interchangeable connections.
package sshpool

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/security"
)

// Config controls the pool's caps and timeouts.
type Config struct {
	MaxEntries        int
	ReadyTimeout      time.Duration
	KeepaliveInterval time.Duration
	KeepaliveCountMax int
	ForceCloseTimeout time.Duration
	MaxAuthFailures   int
	LockoutDuration   time.Duration
}

// DefaultConfig mirrors the teacher's DefaultPoolConfig magnitudes, adapted
// to this pool's per-key model.
func DefaultConfig() Config {
	return Config{
		MaxEntries:        50,
		ReadyTimeout:      10 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		KeepaliveCountMax: 3,
		ForceCloseTimeout: 2 * time.Second,
		MaxAuthFailures:   3,
		LockoutDuration:   5 * time.Minute,
	}
}

// dialCall coalesces concurrent Acquire calls for the same key: the first
// caller dials, later callers block on wg and read the result it stored.
type dialCall struct {
	wg     sync.WaitGroup
	client *ssh.Client
	err    error
}

// Pool hands out ssh.Client transports keyed by (user, host, port).
type Pool struct {
	cfg     Config
	dialer  ports.SSHDialer
	clock   ports.Clock
	keyring *security.KeyringStore
	fs      ports.FileSystem

	mu       sync.Mutex
	entries  map[key]*transportEntry
	inFlight map[key]*dialCall
	failures map[key]*authFailure
}

// New constructs a Pool. keyring may be nil, in which case passphrase
// fallback lookup is skipped.
func New(cfg Config, dialer ports.SSHDialer, clock ports.Clock, fs ports.FileSystem, keyring *security.KeyringStore) *Pool {
	return &Pool{
		cfg:      cfg,
		dialer:   dialer,
		clock:    clock,
		fs:       fs,
		keyring:  keyring,
		entries:  make(map[key]*transportEntry),
		inFlight: make(map[key]*dialCall),
	}
}

// Acquire returns a live *ssh.Client for (user, host, port), reusing an
// existing transport when connected, opening a new one otherwise, subject to
// the pool's per-pool cap. Concurrent callers for the same key coalesce onto
// a single dial.
func (p *Pool) Acquire(user, host string, port int, keyPath string, auth AuthConfig) (*ssh.Client, error) {
	if user == "" || host == "" {
		return nil, errs.New(errs.InvalidArgument, "user and host must not be empty")
	}
	if port < 1 || port > 65535 {
		return nil, errs.New(errs.InvalidArgument, "port %d out of range [1,65535]", port)
	}
	if auth.KeyPath == "" {
		auth.KeyPath = keyPath
	}
	if auth.FS == nil {
		auth.FS = p.fs
	}
	if auth.Keyring == nil {
		auth.Keyring = p.keyring
	}

	k := key{user: user, host: host, port: port}

	p.mu.Lock()
	if entry, ok := p.entries[k]; ok {
		if entry.isConnected() {
			p.mu.Unlock()
			entry.touch(p.clock.Now())
			return entry.client, nil
		}
		// Disconnected entry: evict before proceeding.
		delete(p.entries, k)
	}

	if until, locked := p.lockedUntil(k); locked {
		p.mu.Unlock()
		return nil, errs.New(errs.ConnectionFailed, "connection attempts to %s@%s:%d locked out until %s", user, host, port, until.Format(time.RFC3339))
	}

	if len(p.entries) >= p.cfg.MaxEntries {
		p.mu.Unlock()
		return nil, errs.New(errs.LimitExceeded, "connection pool at capacity (%d)", p.cfg.MaxEntries)
	}

	if call, ok := p.inFlight[k]; ok {
		p.mu.Unlock()
		call.wg.Wait()
		if call.err != nil {
			return nil, call.err
		}
		return call.client, nil
	}

	call := &dialCall{}
	call.wg.Add(1)
	p.inFlight[k] = call
	p.mu.Unlock()

	client, err := p.dial(k, auth)

	p.mu.Lock()
	delete(p.inFlight, k)
	if err != nil {
		call.err = err
		p.recordAuthFailure(k)
	} else {
		call.client = client
		p.entries[k] = newTransportEntry(client, p.clock.Now())
		p.clearAuthFailures(k)
		p.watchClose(k, client)
	}
	p.mu.Unlock()

	call.wg.Done()

	if err != nil {
		return nil, err
	}
	return client, nil
}

func (p *Pool) dial(k key, auth AuthConfig) (*ssh.Client, error) {
	methods, err := buildAuthMethods(auth)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            k.user,
		Auth:            methods,
		HostKeyCallback: buildHostKeyCallback(auth.KnownHostsPath),
		Timeout:         p.cfg.ReadyTimeout,
	}

	addr := fmt.Sprintf("%s:%d", k.host, k.port)
	client, err := p.dialer.Dial("tcp", addr, cfg)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, errs.Wrap(errs.ConnectionTimeout, err, "connect to %s", addr)
		}
		return nil, errs.Wrap(errs.ConnectionFailed, err, "connect to %s", addr)
	}
	return client, nil
}

// watchClose observes the transport's wait channel and marks the entry
// disconnected once the underlying connection ends, mirroring the teacher's
// pattern of a background goroutine flipping `connected` on close.
func (p *Pool) watchClose(k key, client *ssh.Client) {
	go func() {
		_ = client.Wait()
		p.mu.Lock()
		if entry, ok := p.entries[k]; ok && entry.client == client {
			entry.markDisconnected()
		}
		p.mu.Unlock()
	}()
}

// DisconnectAll closes every live transport, bounding each close attempt by
// ForceCloseTimeout, then clears the registry unconditionally.
func (p *Pool) DisconnectAll() {
	p.mu.Lock()
	entries := make([]*transportEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.entries = make(map[key]*transportEntry)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *transportEntry) {
			defer wg.Done()
			done := make(chan struct{})
			go func() {
				_ = e.client.Close()
				close(done)
			}()
			timer := p.clock.NewTimer(p.cfg.ForceCloseTimeout)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C():
			}
		}(e)
	}
	wg.Wait()
}

// Count returns the current number of registered transport entries.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Pool) lockedUntil(k key) (time.Time, bool) {
	if p.cfg.MaxAuthFailures <= 0 {
		return time.Time{}, false
	}
	entry, ok := p.failureEntries()[k]
	if !ok {
		return time.Time{}, false
	}
	now := p.clock.Now()
	if entry.count < p.cfg.MaxAuthFailures {
		return time.Time{}, false
	}
	if now.After(entry.lockedUntil) {
		return time.Time{}, false
	}
	return entry.lockedUntil, true
}

// authFailure tracks consecutive dial failures per key, adapted from the
// teacher's internal/security.AuthRateLimiter but keyed on the pool's
// (user, host, port) triple rather than (user, host).
type authFailure struct {
	count       int
	lockedUntil time.Time
}

func (p *Pool) failureEntries() map[key]*authFailure {
	if p.failures == nil {
		p.failures = make(map[key]*authFailure)
	}
	return p.failures
}

func (p *Pool) recordAuthFailure(k key) {
	entries := p.failureEntries()
	f, ok := entries[k]
	if !ok {
		f = &authFailure{}
		entries[k] = f
	}
	f.count++
	if f.count >= p.cfg.MaxAuthFailures {
		f.lockedUntil = p.clock.Now().Add(p.cfg.LockoutDuration)
	}
}

func (p *Pool) clearAuthFailures(k key) {
	delete(p.failureEntries(), k)
}

func isTimeoutErr(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}
