// Package realclock provides a real implementation of the Clock port using the time package.
package realclock

import (
	"time"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
)

// Clock implements ports.Clock using the standard time package.
type Clock struct{}

// New returns a new real Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now()
}

// NewTicker returns a new Ticker that sends the current time on its channel.
func (c *Clock) NewTicker(d time.Duration) ports.Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

// NewTimer returns a new Timer that fires once after d.
func (c *Clock) NewTimer(d time.Duration) ports.Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time         { return t.timer.C }
func (t *realTimer) Stop() bool                  { return t.timer.Stop() }
func (t *realTimer) Reset(d time.Duration) bool  { return t.timer.Reset(d) }

// Ensure Clock implements ports.Clock.
var _ ports.Clock = (*Clock)(nil)
