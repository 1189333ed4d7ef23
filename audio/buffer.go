package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrReadTooLarge is returned when a read asks for more bytes than a bounded
// buffer can ever hold.
var ErrReadTooLarge = errors.New("audio: read larger than buffer limit")

// compactThreshold is the consumed prefix size after which Read reclaims it.
const compactThreshold = 64 * 1024

// Buffer bridges the capture callback and the network stream. Write appends
// and never blocks; Read waits until the requested number of unread bytes is
// available. One writer and one reader.
//
// With a non-zero limit, the oldest unread bytes are dropped when the unread
// backlog would exceed it. The default (0) never drops audio.
type Buffer struct {
	mu      sync.Mutex
	data    []byte
	off     int // read cursor into data
	limit   int
	written int64
	read    int64
	dropped int64
	ready   chan struct{}
}

// NewBuffer creates a buffer. limit caps the unread backlog in bytes; 0 means
// unbounded.
func NewBuffer(limit int) *Buffer {
	if limit < 0 {
		limit = 0
	}
	return &Buffer{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Write appends a copy of p. It is safe to call from the audio callback.
func (b *Buffer) Write(p []byte) {
	if len(p) == 0 {
		return
	}

	b.mu.Lock()
	if b.limit > 0 {
		if len(p) > b.limit {
			b.dropped += int64(len(p) - b.limit)
			p = p[len(p)-b.limit:]
		}
		if excess := len(b.data) - b.off + len(p) - b.limit; excess > 0 {
			b.off += excess
			b.dropped += int64(excess)
		}
	}
	b.data = append(b.data, p...)
	b.written += int64(len(p))
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Read blocks until n unread bytes are available and returns exactly n of
// them, advancing the cursor. It returns ctx.Err() if ctx ends first.
func (b *Buffer) Read(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}
	if b.limit > 0 && n > b.limit {
		return nil, ErrReadTooLarge
	}

	for {
		b.mu.Lock()
		if len(b.data)-b.off >= n {
			out := make([]byte, n)
			copy(out, b.data[b.off:b.off+n])
			b.off += n
			b.read += int64(n)
			b.compact()
			b.mu.Unlock()
			return out, nil
		}
		b.mu.Unlock()

		select {
		case <-b.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// compact drops the consumed prefix once it dominates the backing slice.
// Callers hold b.mu.
func (b *Buffer) compact() {
	if b.off < compactThreshold || b.off < len(b.data)/2 {
		return
	}
	n := copy(b.data, b.data[b.off:])
	b.data = b.data[:n]
	b.off = 0
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) - b.off
}

// BufferStats are cumulative byte counters.
type BufferStats struct {
	Written int64
	Read    int64
	Dropped int64
}

// Stats returns the cumulative counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{Written: b.written, Read: b.read, Dropped: b.dropped}
}
