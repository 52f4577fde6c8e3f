// Package tailbuf provides a bounded writer that retains only the last N
// bytes written to it, for attaching process output tails to errors without
// holding the whole stream in memory.
package tailbuf

import "sync"

// Buffer is an io.Writer keeping the trailing max bytes of everything
// written. Safe for concurrent writers so one buffer can capture both output
// streams of a process.
type Buffer struct {
	mu        sync.Mutex
	max       int
	buf       []byte
	truncated bool
}

func New(max int) *Buffer {
	return &Buffer{max: max}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.max {
		if n > b.max || len(b.buf) > 0 {
			b.truncated = true
		}
		b.buf = append(b.buf[:0], p[n-b.max:]...)
		return n, nil
	}
	if overflow := len(b.buf) + n - b.max; overflow > 0 {
		b.buf = append(b.buf[:0], b.buf[overflow:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

// String returns the retained tail.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Truncated reports whether any leading bytes were discarded.
func (b *Buffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Len returns the number of retained bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
