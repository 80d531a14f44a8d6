// Package ringbuf provides the bounded, time-ordered candle window the trading
// session computes indicators over. When full, a push overwrites the oldest
// candle (FIFO eviction), so the window never exceeds its capacity.
package ringbuf

import "papertrader/internal/model"

// DefaultCapacity is the window length used when none is configured.
const DefaultCapacity = 192

// Buffer is a fixed-capacity ring of candles.
// Not safe for concurrent use; the owning session serializes access.
type Buffer struct {
	buf   []model.Candle
	head  int // index of the oldest candle
	count int

	evicted uint64
}

// New creates a buffer holding at most capacity candles.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{buf: make([]model.Candle, capacity)}
}

// Push appends c as the newest candle. If the buffer is full the oldest
// candle is discarded in the same step. Returns true if a candle was evicted.
func (b *Buffer) Push(c model.Candle) bool {
	capacity := len(b.buf)
	if b.count < capacity {
		b.buf[(b.head+b.count)%capacity] = c
		b.count++
		return false
	}

	// Full: the slot holding the oldest candle becomes the newest.
	b.buf[b.head] = c
	b.head = (b.head + 1) % capacity
	b.evicted++
	return true
}

// Snapshot returns the buffered candles oldest first. The returned slice is
// a copy and may be modified freely.
func (b *Buffer) Snapshot() []model.Candle {
	out := make([]model.Candle, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return out
}

// Last returns the newest candle.
func (b *Buffer) Last() (model.Candle, bool) {
	if b.count == 0 {
		return model.Candle{}, false
	}
	return b.buf[(b.head+b.count-1)%len(b.buf)], true
}

// Len returns the current number of candles.
func (b *Buffer) Len() int { return b.count }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Evicted returns the total number of candles discarded on overflow.
func (b *Buffer) Evicted() uint64 { return b.evicted }

// Reset empties the buffer. The eviction counter is kept.
func (b *Buffer) Reset() {
	for i := range b.buf {
		b.buf[i] = model.Candle{}
	}
	b.head = 0
	b.count = 0
}
