package pssession

import "sync"

// outputBuffer is the bounded, background-only output buffer of spec.md
// §4.3.4: appends never exceed maxSize entries; overflow trims to the
// newest trimTo entries.
type outputBuffer struct {
	mu      sync.Mutex
	entries []string
	maxSize int
	trimTo  int
}

func newOutputBuffer(maxSize, trimTo int) *outputBuffer {
	return &outputBuffer{maxSize: maxSize, trimTo: trimTo}
}

func (b *outputBuffer) append(chunk string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, chunk)
	if len(b.entries) > b.maxSize {
		start := len(b.entries) - b.trimTo
		trimmed := make([]string, b.trimTo)
		copy(trimmed, b.entries[start:])
		b.entries = trimmed
	}
}

// snapshot returns a copy of the last `lines` entries, or all entries when
// lines is nil, optionally clearing the buffer afterward.
func (b *outputBuffer) snapshot(lines *int, clear bool) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.entries)
	start := 0
	if lines != nil && *lines < n {
		start = n - *lines
	}
	out := make([]string, n-start)
	copy(out, b.entries[start:])

	if clear {
		b.entries = nil
	}
	return out
}
