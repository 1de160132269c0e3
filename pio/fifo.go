package pio

import "pioemu/core"

const maxFIFODepth = 2 * core.FIFODepth

// FIFO is a circular buffer of 32 bit words. Its depth is 4 normally, 8
// when the opposite direction's storage is joined into it and 0 when its
// own storage has been lent out.
type FIFO struct {
	buf   [maxFIFODepth]uint32
	read  int
	count int
	depth int
}

// Push appends w. It reports false, dropping w, when the FIFO is full.
func (f *FIFO) Push(w uint32) bool {
	if f.count >= f.depth {
		return false
	}
	f.buf[(f.read+f.count)%maxFIFODepth] = w
	f.count++
	return true
}

// Pop removes the oldest word. It reports false when the FIFO is empty.
func (f *FIFO) Pop() (uint32, bool) {
	if f.count == 0 {
		return 0, false
	}
	w := f.buf[f.read]
	f.read = (f.read + 1) % maxFIFODepth
	f.count--
	return w, true
}

// Peek returns the oldest word without removing it.
func (f *FIFO) Peek() uint32 {
	if f.count == 0 {
		return 0
	}
	return f.buf[f.read]
}

// Level returns the number of words held.
func (f *FIFO) Level() int { return f.count }

// Depth returns the capacity.
func (f *FIFO) Depth() int { return f.depth }

func (f *FIFO) IsEmpty() bool { return f.count == 0 }
func (f *FIFO) IsFull() bool  { return f.count >= f.depth }

// Reset empties the FIFO and sets its capacity.
func (f *FIFO) Reset(depth int) {
	f.read = 0
	f.count = 0
	f.depth = depth
}
