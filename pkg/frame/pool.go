package frame

import "sync"

// DefaultPoolSlots is sized so the extraction loop can keep a couple of
// batches worth of buffers in flight without reallocating.
const DefaultPoolSlots = 16

// DefaultPoolBufferSize fits a 4K 4:2:0 frame.
const DefaultPoolBufferSize = 3840 * 2160 * 3 / 2

// Pool is a fixed ring of reusable byte buffers for the extraction path,
// avoiding a heap allocation per decoded frame. Get transfers ownership
// of a buffer to the caller; Put hands it back once the frame has been
// consumed. Get never blocks and never fails: an empty or undersized
// slot just means a fresh allocation.
type Pool struct {
	mu        sync.Mutex
	buffers   [][]byte
	getCursor int
	putCursor int
}

// NewPool creates a pool of the given slot count, each slot pre-grown to
// bufferSize capacity. Non-positive arguments fall back to the defaults.
func NewPool(slots, bufferSize int) *Pool {
	if slots <= 0 {
		slots = DefaultPoolSlots
	}
	if bufferSize <= 0 {
		bufferSize = DefaultPoolBufferSize
	}
	buffers := make([][]byte, slots)
	for i := range buffers {
		buffers[i] = make([]byte, 0, bufferSize)
	}
	return &Pool{buffers: buffers}
}

// Get returns a cleared buffer with capacity of at least minSize, taken
// round-robin from the ring. The slot is emptied so the same backing
// array can never be handed out twice.
func (p *Pool) Get(minSize int) []byte {
	p.mu.Lock()
	buf := p.buffers[p.getCursor]
	p.buffers[p.getCursor] = nil
	p.getCursor = (p.getCursor + 1) % len(p.buffers)
	p.mu.Unlock()

	if cap(buf) < minSize {
		buf = make([]byte, 0, minSize)
	}
	return buf[:0]
}

// Put returns a spent buffer to the ring. Buffers beyond the ring's
// capacity are dropped for the garbage collector to reclaim.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	p.buffers[p.putCursor] = buf[:0]
	p.putCursor = (p.putCursor + 1) % len(p.buffers)
	p.mu.Unlock()
}
