package evmvc

// Buffer is an append-only, drainable byte buffer. It backs both the
// inbound parse buffer of a Connection and the outbound response buffer.
//
// Unlike a bytes.Buffer, a Buffer exposes a contiguous view of its unread
// bytes via PullUp without copying, and lets a caller drop a consumed
// prefix with DrainFront. Every view it returns aliases its storage and is
// invalidated by the next mutating call, DrainFront included: DrainFront
// may compact the storage in place.
type Buffer struct {
	buf []byte
	off int
}

// NewBuffer returns a new empty Buffer, optionally seeded with b. The
// Buffer takes ownership of b.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{buf: b}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.off
}

// Append appends p to the buffer.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	b.buf = append(b.buf, p...)
}

// AppendString appends s to the buffer.
func (b *Buffer) AppendString(s string) {
	if s == "" {
		return
	}

	b.buf = append(b.buf, s...)
}

// PullUp returns a contiguous view of the n unread bytes at the front of
// the buffer. It panics if n exceeds Len. The returned slice aliases the
// buffer's storage and is only valid until the next mutating call.
func (b *Buffer) PullUp(n int) []byte {
	if n > b.Len() {
		panic("evmvc: PullUp beyond buffer length")
	}

	return b.buf[b.off : b.off+n]
}

// Bytes returns a view of all unread bytes. It aliases the buffer's
// storage and is only valid until the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.off:]
}

// DrainFront discards the first n unread bytes. It panics if n exceeds
// Len.
func (b *Buffer) DrainFront(n int) {
	if n > b.Len() {
		panic("evmvc: DrainFront beyond buffer length")
	}

	b.off += n

	// Reclaim storage once the buffer has been fully drained, and
	// opportunistically compact when the drained prefix has grown large
	// relative to what remains, so a long-lived connection buffer does
	// not retain unbounded garbage behind b.off.
	if b.off == len(b.buf) {
		b.buf = b.buf[:0]
		b.off = 0
	} else if b.off > 4096 && b.off > len(b.buf)/2 {
		n := copy(b.buf, b.buf[b.off:])
		b.buf = b.buf[:n]
		b.off = 0
	}
}

// MoveInto drains all unread bytes of b and appends them to dst, leaving b
// empty.
func (b *Buffer) MoveInto(dst *Buffer) {
	dst.Append(b.Bytes())
	b.buf = b.buf[:0]
	b.off = 0
}

// Reset empties the buffer, retaining its storage for reuse.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.off = 0
}
