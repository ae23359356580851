// ABOUTME: Fixed-capacity circular byte buffer with explicit fill count
// ABOUTME: Supports drop-excess and overwrite-oldest write policies
package ring

import "sync"

// Ring is a thread-safe circular byte buffer.
//
// Unread bytes are tracked by an explicit count rather than derived from the
// cursors, so a full ring holds exactly Cap() bytes and is never confused with
// an empty one. One writer and one reader may use a Ring concurrently.
type Ring struct {
	mu    sync.Mutex
	buf   []byte
	read  int
	write int
	count int
	total uint64
}

// New creates a ring holding at most capacity bytes. Capacity must be positive.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Ring{buf: make([]byte, capacity)}
}

// Cap returns the capacity in bytes.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of unread bytes.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Free returns the number of bytes that can be written without loss.
func (r *Ring) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.count
}

// TotalWritten returns the number of bytes ever stored in the ring.
func (r *Ring) TotalWritten() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Cursors returns the read and write positions.
func (r *Ring) Cursors() (read, write int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read, r.write
}

// Write stores as much of p as fits and drops the rest. It returns the
// number of bytes stored. A full ring leaves its state untouched.
func (r *Ring) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(p), len(r.buf)-r.count)
	if n == 0 {
		return 0
	}
	r.copyIn(p[:n])
	return n
}

// Overwrite stores all of p, discarding the oldest unread bytes when p does
// not fit. It returns how many bytes were lost. When p is larger than the
// ring only its tail is kept and the dropped head counts as lost.
func (r *Ring) Overwrite(p []byte) (overwritten int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p) == 0 {
		return 0
	}
	if len(p) > len(r.buf) {
		overwritten = r.count + len(p) - len(r.buf)
		r.total += uint64(len(p) - len(r.buf))
		p = p[len(p)-len(r.buf):]
		r.read, r.write, r.count = 0, 0, 0
		r.copyIn(p)
		return overwritten
	}

	if excess := r.count + len(p) - len(r.buf); excess > 0 {
		r.read = (r.read + excess) % len(r.buf)
		r.count -= excess
		overwritten = excess
	}
	r.copyIn(p)
	return overwritten
}

// copyIn appends p at the write cursor. Caller holds mu and guarantees fit.
func (r *Ring) copyIn(p []byte) {
	n := copy(r.buf[r.write:], p)
	if n < len(p) {
		copy(r.buf, p[n:])
	}
	r.write = (r.write + len(p)) % len(r.buf)
	r.count += len(p)
	r.total += uint64(len(p))
}

// Peek copies up to len(dst) unread bytes into dst without consuming them.
func (r *Ring) Peek(dst []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOut(dst)
}

func (r *Ring) copyOut(dst []byte) int {
	n := min(len(dst), r.count)
	if n == 0 {
		return 0
	}
	c := copy(dst[:n], r.buf[r.read:])
	if c < n {
		copy(dst[c:n], r.buf)
	}
	return n
}

// Discard consumes up to n unread bytes and returns how many were consumed.
func (r *Ring) Discard(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n = max(0, min(n, r.count))
	r.read = (r.read + n) % len(r.buf)
	r.count -= n
	return n
}

// ReadAll drains every unread byte. It returns nil when the ring is empty.
func (r *Ring) ReadAll() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}
	out := make([]byte, r.count)
	r.copyOut(out)
	r.read = r.write
	r.count = 0
	return out
}
