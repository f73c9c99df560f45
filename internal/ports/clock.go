// Package ports defines interfaces for external dependencies (Ports and Adapters pattern).
package ports

import "time"

// Clock abstracts time operations so timers and tickers in the session and
// pool engines can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a new Ticker that sends the current time on its
	// channel after each tick.
	NewTicker(d time.Duration) Ticker

	// NewTimer returns a new Timer that sends the current time on its
	// channel once, after duration d.
	NewTimer(d time.Duration) Timer
}

// Ticker wraps time.Ticker for testing.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer wraps time.Timer for testing.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}
