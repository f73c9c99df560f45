package pssession

import "sync"

// fakeTransport is a scriptable shellTransport double: tests push bytes
// into it as though the remote shell had written them, and inspect what
// the run loop wrote in return.
type fakeTransport struct {
	mu       sync.Mutex
	writes   []string
	stdoutC  chan string
	stderrC  chan string
	closed   bool
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		stdoutC: make(chan string, 256),
		stderrC: make(chan string, 256),
	}
}

func (t *fakeTransport) push(chunk string) { t.stdoutC <- chunk }

func (t *fakeTransport) endStream() {
	close(t.stdoutC)
	close(t.stderrC)
}

// closeStderr closes only the stderr stream, simulating the stderr drain
// goroutine finishing independently of stdout.
func (t *fakeTransport) closeStderr() {
	close(t.stderrC)
}

// failWrites makes every subsequent write return err, simulating a broken
// stdin pipe.
func (t *fakeTransport) failWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *fakeTransport) write(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.writes = append(t.writes, s)
	return nil
}

func (t *fakeTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) stdout() <-chan string { return t.stdoutC }
func (t *fakeTransport) stderr() <-chan string { return t.stderrC }

func (t *fakeTransport) writesSnapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	copy(out, t.writes)
	return out
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

var _ shellTransport = (*fakeTransport)(nil)
