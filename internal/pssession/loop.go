package pssession

import (
	"strings"
	"time"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/events"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
)

// loop is the Session's single-writer/single-consumer goroutine: it owns
// the shell channel's byte stream and the command queue, so nothing else
// ever writes to the channel or mutates the queue concurrently.
func (s *Session) loop() {
	var queue []*commandRequest
	var current *commandRequest
	var cmdTimer ports.Timer
	var cmdTimerC <-chan time.Time

	keepAlive := s.clock.NewTicker(s.cfg.KeepAliveInterval)
	inactivity := s.clock.NewTimer(s.cfg.SessionTimeout)
	defer keepAlive.Stop()

	// stderrCh is read from a local variable, not s.channel.stderr()
	// directly, so the select case can be disabled by nil-ing it out once
	// the stderr drain goroutine closes it. stdout and stderr close
	// independently (shellchan.go starts two separate drain goroutines),
	// and a receive from a closed channel never blocks, so without this a
	// stderr-closes-first session would busy-spin the select forever.
	stderrCh := s.channel.stderr()

	clearCommandTimer := func() {
		if cmdTimer != nil {
			cmdTimer.Stop()
			cmdTimer = nil
		}
		cmdTimerC = nil
	}

	failAll := func(err error) {
		if current != nil {
			current.resolve(outcome{err: err})
			current = nil
		}
		for _, req := range queue {
			req.resolve(outcome{err: err})
		}
		queue = nil
	}

	doClose := func() {
		clearCommandTimer()
		inactivity.Stop()
		failAll(errs.New(errs.SessionInactive, "session %s closed", s.id))

		s.infoMu.Lock()
		s.isActive = false
		s.infoMu.Unlock()

		s.cancel()
		if s.channel != nil {
			s.channel.close()
		}
		s.events.Emit(events.Event{Kind: events.Closed, SessionID: s.id})
	}

	// pump writes the next queued command to the shell channel, if any.
	// It reports true when a write failure made the session fatal: a
	// broken stdin pipe means every future write will fail the same way,
	// so the failing command is resolved with StreamError, the failure is
	// surfaced on the event stream, and the session is torn down via
	// doClose rather than left registered and accepting further commands
	// against a channel that can never recover.
	pump := func() bool {
		if current != nil || len(queue) == 0 {
			return false
		}
		current = queue[0]
		queue = queue[1:]

		if current.raw {
			if err := s.channel.write(current.cmd + "\n"); err != nil {
				current.resolve(outcome{err: errs.Wrap(errs.StreamError, err, "write to shell")})
				current = nil
				s.events.Emit(events.Event{Kind: events.Error, SessionID: s.id, Err: err})
				doClose()
				return true
			}
		} else {
			start := s.delimStem + "_START_" + current.id
			end := s.delimStem + "_END_" + current.id
			wrapped, err := s.formatter.Wrap(current.cmd, start, end)
			if err != nil {
				current.resolve(outcome{err: err})
				current = nil
				return false
			}
			if err := s.channel.write(wrapped + "\n"); err != nil {
				current.resolve(outcome{err: errs.Wrap(errs.StreamError, err, "write to shell")})
				current = nil
				s.events.Emit(events.Event{Kind: events.Error, SessionID: s.id, Err: err})
				doClose()
				return true
			}
		}

		cmdTimer = s.clock.NewTimer(current.timeout)
		cmdTimerC = cmdTimer.C()
		return false
	}

	// handleChunk reports true when the chunk it just processed led pump
	// to discover a fatal write failure, so its caller must stop driving
	// the loop the same way it does after doClose from any other case.
	handleChunk := func(chunk string) bool {
		if s.typ == Background {
			s.buffer.append(chunk)
		}
		if current == nil || current.raw {
			if current != nil {
				current.accumulator = append(current.accumulator, chunk...)
			}
			return false
		}
		current.accumulator = append(current.accumulator, chunk...)

		start := s.delimStem + "_START_" + current.id
		end := s.delimStem + "_END_" + current.id
		acc := string(current.accumulator)

		code, ok := s.formatter.ExtractExitCode(acc, end)
		if !ok {
			return false
		}

		startIdx := strings.LastIndex(acc, start)
		if startIdx < 0 {
			// End marker seen before the start marker was echoed back;
			// the echo may have been truncated. Wait for more data.
			return false
		}

		endMarkerPos := strings.Index(acc[startIdx:], end)
		if endMarkerPos < 0 {
			return false
		}
		endMarkerPos += startIdx

		between := acc[startIdx+len(start) : endMarkerPos]
		stdout := trimFramedStdout(between)

		resolved := current
		current = nil
		clearCommandTimer()
		resolved.resolve(outcome{result: Result{Stdout: stdout, ExitCode: exitCodePtr(code)}})
		return pump()
	}

	for {
		select {
		case msg := <-s.submitCh:
			s.infoMu.Lock()
			active := s.isActive
			s.infoMu.Unlock()
			if !active {
				err := errs.New(errs.SessionInactive, "session %s is not active", s.id)
				msg.req.resolve(outcome{err: err})
				msg.ackCh <- err
				continue
			}

			s.infoMu.Lock()
			s.history = append(s.history, msg.req.cmd)
			s.lastActivity = s.clock.Now()
			s.infoMu.Unlock()
			inactivity.Reset(s.cfg.SessionTimeout)

			if s.typ == Background {
				synthetic := Result{
					Stdout:   "Command '" + msg.req.cmd + "' queued in background session '" + msg.req.id + "'",
					ExitCode: exitCodePtr(0),
				}
				msg.req.resolve(outcome{result: synthetic})
			}

			queue = append(queue, msg.req)
			msg.ackCh <- nil
			if pump() {
				return
			}

		case chunk, ok := <-s.channel.stdout():
			if !ok {
				doClose()
				return
			}
			if handleChunk(chunk) {
				return
			}

		case chunk, ok := <-stderrCh:
			if !ok {
				// Stderr closed independently of stdout; disable this
				// case so the select can't busy-spin on it, and keep
				// running until stdout (or some other event) ends the
				// loop.
				stderrCh = nil
				continue
			}
			if handleChunk(chunk) {
				return
			}

		case <-keepAlive.C():
			s.infoMu.Lock()
			active := s.isActive
			s.infoMu.Unlock()
			if active && current == nil && len(queue) == 0 {
				s.channel.write(s.formatter.KeepAlive())
			}

		case <-inactivity.C():
			s.events.Emit(events.Event{Kind: events.Timeout, SessionID: s.id})
			doClose()
			return

		case <-cmdTimerC:
			cmdTimerC = nil
			if current != nil {
				req := current
				current = nil
				if req.raw {
					req.resolve(outcome{result: Result{Stdout: string(req.accumulator), ExitCode: exitCodePtr(0)}})
				} else {
					req.resolve(outcome{err: errs.New(errs.CommandTimeout, "command %s timed out", req.id)})
				}
			}
			if pump() {
				return
			}

		case <-s.closeRequestCh:
			doClose()
			return
		}
	}
}
