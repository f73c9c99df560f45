// Package pssession implements the Persistent Session: a single interactive
// shell channel with a command queue, delimiter-based output framing, exit
// code extraction, keep-alive, timeouts, and bounded output buffering.
//
// Grounded on the teacher's internal/ssh.SSHPTY (shell channel setup) and
// internal/session.Session (marker framing, exit code extraction), reworked
// from the teacher's poll-loop — a caller blocks inside Exec reading the PTY
// directly — into a queue-and-timer engine: a single background goroutine
// per Session owns the command queue and the shell channel's byte stream,
// and command outcomes resolve exactly once through a one-shot channel per
// request.
package pssession

import (
	"time"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/shellfmt"
)

// Type distinguishes whether a caller waits for a command's framed result
// (interactive) or fires-and-forgets into the shared output buffer
// (background).
type Type string

const (
	Interactive Type = "interactive"
	Background  Type = "background"
)

// Mode selects whether commands are wrapped with start/end markers (normal)
// or written verbatim with a timer-based completion heuristic (raw).
type Mode string

const (
	Normal Mode = "normal"
	Raw    Mode = "raw"
)

// Result is the outcome of one command. Raw-mode completion always reports
// ExitCode 0 since the real code is unknowable without framing.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode *int
	Signal   *string
}

// Config holds the timers and bounds spec.md §5 names, all overridable
// within the documented bounds.
type Config struct {
	DefaultCommandTimeout time.Duration
	SessionTimeout        time.Duration
	KeepAliveInterval     time.Duration
	StartupSettleDelay    time.Duration
	MaxBufferSize         int
	BufferTrimTo          int
}

// DefaultConfig mirrors spec.md §5's default timeouts (values in ms there,
// time.Duration here) and buffer bounds.
func DefaultConfig() Config {
	return Config{
		DefaultCommandTimeout: 30 * time.Second,
		SessionTimeout:        600 * time.Second,
		KeepAliveInterval:     30 * time.Second,
		StartupSettleDelay:    300 * time.Millisecond,
		MaxBufferSize:         10000,
		BufferTrimTo:          5000,
	}
}

// Info is a deep-copied, read-only snapshot of Session state. Mutating it
// must never affect the live Session (spec.md §3, §8). It intentionally
// omits environmentVars, commandHistory, and workingDirectory to match the
// information-minimization the Manager applies before export (spec.md §6);
// commandHistory is available separately via History for callers within the
// core that do need it (the Manager's exported SessionInfo does not).
type Info struct {
	ID           string
	Host         string
	User         string
	Port         int
	Type         Type
	Mode         Mode
	ShellKind    shellfmt.Kind
	CreatedAt    time.Time
	LastActivity time.Time
	IsActive     bool
}
