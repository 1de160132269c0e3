package protocol

// ByteRing is a bounded circular byte queue used to accumulate partial
// frames between reads.
type ByteRing struct {
	buf   []byte
	start int
	count int
}

// NewByteRing returns a ring holding at most capacity bytes.
func NewByteRing(capacity int) *ByteRing {
	return &ByteRing{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the number of bytes
// taken.
func (r *ByteRing) Write(data []byte) int {
	n := min(len(data), r.Free())
	for i := 0; i < n; i++ {
		r.buf[(r.start+r.count+i)%len(r.buf)] = data[i]
	}
	r.count += n
	return n
}

// Available returns the number of queued bytes.
func (r *ByteRing) Available() int { return r.count }

// Free returns the room left.
func (r *ByteRing) Free() int { return len(r.buf) - r.count }

// Data returns the queued bytes as one slice. When the contents wrap they
// are copied; otherwise the slice aliases the ring.
func (r *ByteRing) Data() []byte {
	end := r.start + r.count
	if end <= len(r.buf) {
		return r.buf[r.start:end]
	}
	out := make([]byte, r.count)
	n := copy(out, r.buf[r.start:])
	copy(out[n:], r.buf[:end-len(r.buf)])
	return out
}

// Pop discards n bytes from the front.
func (r *ByteRing) Pop(n int) {
	n = min(n, r.count)
	r.start = (r.start + n) % len(r.buf)
	r.count -= n
	if r.count == 0 {
		r.start = 0
	}
}

func (r *ByteRing) IsEmpty() bool { return r.count == 0 }

func (r *ByteRing) Reset() {
	r.start, r.count = 0, 0
}
