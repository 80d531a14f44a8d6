package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"papertrader/internal/model"
)

// DefaultQueueSize holds a full seed window plus a backlog of live bars.
const DefaultQueueSize = 1024

// ErrQueueFull is returned when the archive writer falls behind.
var ErrQueueFull = errors.New("archive queue full")

// Queue hands candles to Archive.Run without blocking the caller.
// It implements model.CandleArchive.
type Queue struct {
	ch      chan SymbolCandle
	dropped atomic.Uint64
}

// NewQueue creates a queue with room for size candles.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan SymbolCandle, size)}
}

// RecordCandles enqueues candles in order. When the queue is full the
// remaining candles are dropped and ErrQueueFull is returned.
func (q *Queue) RecordCandles(_ context.Context, symbol string, candles []model.Candle) error {
	for i, c := range candles {
		select {
		case q.ch <- SymbolCandle{Symbol: symbol, Candle: c}:
		default:
			n := len(candles) - i
			q.dropped.Add(uint64(n))
			return fmt.Errorf("%w: dropped %d candles for %s", ErrQueueFull, n, symbol)
		}
	}
	return nil
}

// C is the channel Archive.Run drains.
func (q *Queue) C() <-chan SymbolCandle { return q.ch }

// Pending returns the number of queued candles.
func (q *Queue) Pending() int { return len(q.ch) }

// Dropped returns the total number of candles lost to a full queue.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
