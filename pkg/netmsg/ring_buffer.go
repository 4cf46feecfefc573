package netmsg

// RecvBufferSize is the capacity of the receive ring used per connection.
const RecvBufferSize = 4096

// RingBuffer is a fixed-capacity circular byte buffer that stages socket
// reads until a complete frame header is available.
//
// Unlike a bare two-pointer ring, the number of unread bytes is tracked
// explicitly, so a buffer holding exactly Cap() bytes is distinguishable
// from an empty one.
type RingBuffer struct {
	buf      []byte
	readPtr  int
	writePtr int
	length   int
}

func NewRingBuffer() *RingBuffer {
	return NewRingBufferSize(RecvBufferSize)
}

// NewRingBufferSize creates a ring with the given capacity. It panics if
// capacity is not positive.
func NewRingBufferSize(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic("netmsg: ring buffer capacity must be positive")
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Len returns the number of buffered, unread bytes.
func (r *RingBuffer) Len() int {
	return r.length
}

func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Writable returns the contiguous free region starting at the write
// position. It never spans the end of the backing array, so it may report
// less than the total free space; callers receive into it repeatedly.
func (r *RingBuffer) Writable() []byte {
	if r.length == len(r.buf) {
		return r.buf[r.writePtr:r.writePtr]
	}
	if r.readPtr > r.writePtr {
		return r.buf[r.writePtr:r.readPtr]
	}
	return r.buf[r.writePtr:]
}

// Written commits n bytes previously received into Writable().
func (r *RingBuffer) Written(n int) {
	if n < 0 || n > len(r.Writable()) {
		panic("netmsg: ring buffer overflow")
	}
	r.writePtr += n
	if r.writePtr == len(r.buf) {
		r.writePtr = 0
	}
	r.length += n
}

// MoveContent copies up to n buffered bytes into out, consuming them. The
// copy is split in two when the unread region wraps around the end of the
// array. It returns the number of bytes moved.
func (r *RingBuffer) MoveContent(n int, out []byte) int {
	n = min(n, r.length, len(out))
	if n <= 0 {
		return 0
	}

	first := min(n, len(r.buf)-r.readPtr)
	copy(out, r.buf[r.readPtr:r.readPtr+first])
	copy(out[first:n], r.buf[:n-first])

	r.consume(n)
	return n
}

func (r *RingBuffer) consume(n int) {
	r.readPtr = (r.readPtr + n) % len(r.buf)
	r.length -= n
	if r.length == 0 {
		// Rewinding an empty ring gives the next Writable() the whole array.
		r.readPtr, r.writePtr = 0, 0
	}
}

func (r *RingBuffer) readUint8() uint8 {
	v := r.buf[r.readPtr]
	r.consume(1)
	return v
}

func (r *RingBuffer) readUint16() uint16 {
	return uint16(r.readUint8())<<8 | uint16(r.readUint8())
}

func (r *RingBuffer) readUint32() uint32 {
	return uint32(r.readUint16())<<16 | uint32(r.readUint16())
}
