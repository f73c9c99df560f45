package pssession

import (
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// shellChannel wraps one interactive shell channel opened on a transport.
// Grounded on the teacher's internal/ssh.SSHPTY (RequestPty + Shell() +
// StdinPipe/StdoutPipe), extended to also drain StderrPipe since spec.md
// §4.3.1 calls for three byte consumers (stdout, stderr, close) even though
// §4.3.2's framer later conflates both streams into one accumulator.
type shellChannel struct {
	session *ssh.Session
	stdin   io.WriteCloser

	stdoutCh chan string
	stderrCh chan string
}

// openShellChannel requests a PTY-backed shell on client and starts the
// goroutines that drain stdout/stderr into buffered string channels. Echo is
// disabled so the framer's accumulator doesn't see the wrapped command text
// twice (once typed, once echoed by the remote tty).
func openShellChannel(client *ssh.Client) (*shellChannel, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("dumb", 24, 200, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	sc := &shellChannel{
		session:  sess,
		stdin:    stdin,
		stdoutCh: make(chan string, 64),
		stderrCh: make(chan string, 64),
	}

	go drainInto(stdout, sc.stdoutCh)
	go drainInto(stderr, sc.stderrCh)

	return sc, nil
}

func drainInto(r io.Reader, out chan<- string) {
	defer close(out)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out <- string(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (sc *shellChannel) write(s string) error {
	_, err := sc.stdin.Write([]byte(s))
	return err
}

func (sc *shellChannel) close() error {
	return sc.session.Close()
}

func (sc *shellChannel) stdout() <-chan string { return sc.stdoutCh }
func (sc *shellChannel) stderr() <-chan string { return sc.stderrCh }

// shellTransport is the surface Session drives its shell over. shellChannel
// is the production implementation (a real SSH session); tests substitute a
// fake that exposes the same channels without a network round trip.
type shellTransport interface {
	write(s string) error
	close() error
	stdout() <-chan string
	stderr() <-chan string
}

var _ shellTransport = (*shellChannel)(nil)
