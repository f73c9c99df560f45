// Package events implements the typed lifecycle event stream that flows from
// a Session to the Manager (spec.md §9: "event-emitter fan-out → explicit
// event stream"), replacing the teacher's ad hoc callback/emitter pattern in
// internal/session.Session with a single typed channel.
package events

// Kind identifies the class of lifecycle event a Session emits.
type Kind string

const (
	// Closed is emitted exactly once when a Session's shell channel ends,
	// whether by explicit Close or by the remote peer hanging up. Delivery
	// is at-least-once; a Manager removing a session from its registry on
	// Closed must be idempotent.
	Closed Kind = "closed"
	// Error is emitted when the shell channel reports a stream-level
	// failure that does not by itself end the session.
	Error Kind = "error"
	// Timeout is emitted when the session's inactivity timer fires.
	Timeout Kind = "timeout"
)

// Event is one lifecycle notification from a Session.
type Event struct {
	Kind      Kind
	SessionID string
	Err       error
}

// Stream is a single-producer, multi-consumer-safe event channel. A Session
// owns the send side; a Manager drains the receive side.
type Stream struct {
	ch chan Event
}

// NewStream returns a Stream with the given buffer depth. A depth of at
// least a handful of events avoids blocking a Session's run loop on a slow
// consumer for the common case of a handful of lifecycle events.
func NewStream(depth int) *Stream {
	if depth < 1 {
		depth = 1
	}
	return &Stream{ch: make(chan Event, depth)}
}

// Emit delivers ev. Closed blocks until delivered: the Manager relies on it
// to remove a session from its registry, and a dropped Closed leaks both the
// registry entry and the watching goroutine forever. Error and Timeout are
// best-effort and are dropped rather than block a Session's run loop if the
// buffer is full, since neither is required for correctness.
func (s *Stream) Emit(ev Event) {
	if ev.Kind == Closed {
		s.ch <- ev
		return
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// C returns the receive side of the stream.
func (s *Stream) C() <-chan Event {
	return s.ch
}
