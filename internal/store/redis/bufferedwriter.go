package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"papertrader/internal/model"
)

// UpdateWriter is the write side BufferedWriter protects.
type UpdateWriter interface {
	WriteUpdate(ctx context.Context, u model.Update) error
}

// BufferedWriter wraps an UpdateWriter with a circuit breaker.
// During circuit-open state, updates are buffered locally. The backlog is
// replayed oldest first before the next live update, so the stream keeps
// ingestion order across an outage. Ingestion never waits on Redis.
type BufferedWriter struct {
	writer UpdateWriter
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex // serializes writes and guards buffer
	buffer []model.Update
	maxBuf int // max buffered updates before dropping oldest (default: 1000)

	// Callbacks
	OnBuffer func()          // called when an update is buffered
	OnFlush  func(count int) // called after flushing buffered updates
	OnError  func(err error) // called when a write fails
}

// NewBufferedWriter creates a BufferedWriter wrapping w.
func NewBufferedWriter(ctx context.Context, w UpdateWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	return &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.Update, 0, 64),
		maxBuf: maxBufferSize,
	}
}

// Write sends u through the circuit breaker after any buffered backlog.
// If the circuit is open, or the backlog cannot be cleared, u is buffered.
func (bw *BufferedWriter) Write(u model.Update) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if !bw.flushLocked() {
		bw.bufferLocked(u)
		return nil // buffered behind the backlog
	}

	err := bw.cb.Execute(func() error {
		return bw.writer.WriteUpdate(bw.ctx, u)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferLocked(u)
		return nil // buffered, not lost
	}
	if err != nil && bw.OnError != nil {
		bw.OnError(err)
	}
	return err
}

// Run writes every update received on ch until ctx is cancelled or ch is
// closed. Write failures are logged and do not stop the loop.
func (bw *BufferedWriter) Run(ctx context.Context, ch <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if err := bw.Write(u); err != nil {
				log.Printf("[redis] update write failed for %s: %v", u.Symbol, err)
			}
		}
	}
}

func (bw *BufferedWriter) bufferLocked(u model.Update) {
	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full, drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, u)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flushLocked replays buffered updates oldest first through the breaker.
// It stops at the first update that cannot be written and keeps it and
// everything after it. Returns true when the buffer is empty.
func (bw *BufferedWriter) flushLocked() bool {
	if len(bw.buffer) == 0 {
		return true
	}

	flushed := 0
	for len(bw.buffer) > 0 {
		u := bw.buffer[0]
		err := bw.cb.Execute(func() error {
			return bw.writer.WriteUpdate(bw.ctx, u)
		})
		if err != nil {
			if !errors.Is(err, ErrCircuitOpen) && bw.OnError != nil {
				bw.OnError(err)
			}
			break
		}
		bw.buffer = bw.buffer[1:]
		flushed++
	}

	if len(bw.buffer) == 0 {
		bw.buffer = make([]model.Update, 0, 64)
	}
	if flushed > 0 {
		log.Printf("[buffered-writer] flushed %d buffered updates, %d pending", flushed, len(bw.buffer))
		if bw.OnFlush != nil {
			bw.OnFlush(flushed)
		}
	}
	return len(bw.buffer) == 0
}

// PendingCount returns the number of buffered updates waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
