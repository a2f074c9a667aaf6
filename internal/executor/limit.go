package executor

import (
	"fmt"
	"sync"
)

// truncationMarker is appended to captured output that exceeded its limit.
const truncationMarker = "\n[backchannel: output truncated, %d bytes dropped]\n"

// LimitedBuffer is an io.Writer that keeps at most limit bytes.
// Writes never fail; bytes past the limit are counted and dropped.
// A limit <= 0 disables the cap.
type LimitedBuffer struct {
	mu      sync.Mutex
	limit   int
	buf     []byte
	dropped int
}

// NewLimitedBuffer creates a buffer capped at limit bytes.
func NewLimitedBuffer(limit int) *LimitedBuffer {
	return &LimitedBuffer{limit: limit}
}

// Write implements io.Writer.
func (b *LimitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit <= 0 {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	room := b.limit - len(b.buf)
	if room >= len(p) {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	if room > 0 {
		b.buf = append(b.buf, p[:room]...)
	}
	b.dropped += len(p) - room
	return len(p), nil
}

// Truncated reports whether any output was dropped.
func (b *LimitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped > 0
}

// Bytes returns a copy of the captured output. When output was dropped the
// tail is replaced by a truncation marker and the result is still no longer
// than the limit.
func (b *LimitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dropped == 0 {
		return append([]byte(nil), b.buf...)
	}

	total := len(b.buf) + b.dropped
	// The marker for the whole output is at least as long as the final one.
	keep := b.limit - len(fmt.Sprintf(truncationMarker, total))
	if keep < 0 {
		return []byte(fmt.Sprintf(truncationMarker, total))[:b.limit]
	}
	marker := fmt.Sprintf(truncationMarker, total-keep)
	out := make([]byte, 0, keep+len(marker))
	out = append(out, b.buf[:keep]...)
	return append(out, marker...)
}
