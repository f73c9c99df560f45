// Package fakeclock provides a manually-advanced ports.Clock for
// deterministic tests of timer- and ticker-driven code (the connection pool
// and persistent session).
package fakeclock

import (
	"sync"
	"time"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
)

var (
	_ ports.Clock  = (*Clock)(nil)
	_ ports.Ticker = (*Ticker)(nil)
	_ ports.Timer  = (*Timer)(nil)
)

// Clock is a ports.Clock whose Now only changes when Advance is called.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*Ticker
	timers  []*Timer
}

// New returns a Clock starting at now.
func New(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the clock's current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake clock forward by d, firing any tickers/timers whose
// deadline has passed. Firing is synchronous and blocking on unbuffered
// channel sends, so a test goroutine must be draining C() concurrently for a
// multi-fire Advance to make progress.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*Ticker(nil), c.tickers...)
	timers := append([]*Timer(nil), c.timers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.maybeFire(now)
	}
	for _, t := range timers {
		t.maybeFire(now)
	}
}

// NewTicker returns a fake Ticker registered with this clock.
func (c *Clock) NewTicker(d time.Duration) ports.Ticker {
	t := &Ticker{ch: make(chan time.Time, 1), interval: d, next: c.Now().Add(d)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// NewTimer returns a fake Timer registered with this clock.
func (c *Clock) NewTimer(d time.Duration) ports.Timer {
	t := &Timer{ch: make(chan time.Time, 1), deadline: c.Now().Add(d), clock: c}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// Ticker is a fake ports.Ticker.
type Ticker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *Ticker) C() <-chan time.Time { return t.ch }

func (t *Ticker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *Ticker) maybeFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.stopped && !now.Before(t.next) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.interval)
	}
}

// Timer is a fake ports.Timer.
type Timer struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	fired    bool
	stopped  bool
	clock    *Clock
}

func (t *Timer) C() <-chan time.Time { return t.ch }

func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (t *Timer) Reset(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = false
	t.fired = false
	t.deadline = t.clock.Now().Add(d)
	return wasActive
}

func (t *Timer) maybeFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return
	}
	if !now.Before(t.deadline) {
		t.fired = true
		select {
		case t.ch <- now:
		default:
		}
	}
}
