// Package fakesshdialer provides a scripted ports.SSHDialer for unit tests
// that need to exercise sshpool.Pool without a real network or SSH server.
package fakesshdialer

import (
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ssh"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
)

var _ ports.SSHDialer = (*Dialer)(nil)

// Dialer returns a scripted result for each Dial call and counts calls per
// address so tests can assert coalescing behavior.
type Dialer struct {
	mu        sync.Mutex
	results   map[string]func() (*ssh.Client, error)
	callCount map[string]int
	total     int64
}

// New returns an empty Dialer; use SetResult to script per-address outcomes.
func New() *Dialer {
	return &Dialer{
		results:   make(map[string]func() (*ssh.Client, error)),
		callCount: make(map[string]int),
	}
}

// SetResult scripts the outcome of every future Dial to addr.
func (d *Dialer) SetResult(addr string, fn func() (*ssh.Client, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[addr] = fn
}

// Dial implements ports.SSHDialer.
func (d *Dialer) Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	atomic.AddInt64(&d.total, 1)
	d.mu.Lock()
	d.callCount[addr]++
	fn := d.results[addr]
	d.mu.Unlock()

	if fn == nil {
		return nil, errDialerNotConfigured(addr)
	}
	return fn()
}

// CallCount reports how many times Dial was invoked for addr.
func (d *Dialer) CallCount(addr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callCount[addr]
}

// TotalCalls reports the number of Dial calls across all addresses.
func (d *Dialer) TotalCalls() int {
	return int(atomic.LoadInt64(&d.total))
}

type dialerNotConfiguredError string

func (e dialerNotConfiguredError) Error() string {
	return "fakesshdialer: no result configured for " + string(e)
}

func errDialerNotConfigured(addr string) error {
	return dialerNotConfiguredError(addr)
}
