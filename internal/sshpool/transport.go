package sshpool

import (
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// key identifies a reusable SSH transport by the exact triple spec.md §3
// names: (username, host, port). Two acquires with the same key must share
// one transport; a different port or user always yields a distinct one.
type key struct {
	user string
	host string
	port int
}

// transportEntry holds one SSH transport. It is created by the Pool, owned
// exclusively by the Pool, and never handed to callers directly — only
// channels derived from client are exposed (via Persistent Session / the
// Manager's one-shot exec path).
type transportEntry struct {
	client *ssh.Client

	mu            sync.Mutex
	connected     bool
	lastActivity  time.Time
	authFailures  int
	lockedUntil   time.Time
}

func newTransportEntry(client *ssh.Client, now time.Time) *transportEntry {
	return &transportEntry{
		client:       client,
		connected:    true,
		lastActivity: now,
	}
}

func (t *transportEntry) isConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *transportEntry) markDisconnected() {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
}

func (t *transportEntry) touch(now time.Time) {
	t.mu.Lock()
	t.lastActivity = now
	t.mu.Unlock()
}
