// Package bus fans session updates out to independent consumers (WebSocket
// hub, Redis publisher, trade alerter). Delivery is at-most-once: a consumer
// whose buffer is full misses that update and never blocks the session.
package bus

import (
	"context"
	"errors"
	"log"
	"sync"

	"papertrader/internal/model"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus closed")

type subscriber struct {
	name string
	ch   chan model.Update
}

// FanOut broadcasts each published update to every subscriber.
// It implements model.Publisher.
type FanOut struct {
	mu      sync.RWMutex
	outputs []subscriber
	bufSize int
	closed  bool

	// OnDrop is called when an update is dropped for a slow subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	if outputBufferSize < 1 {
		outputBufferSize = 1
	}
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new named output channel. The channel is
// closed by Close.
func (f *FanOut) Subscribe(name string) <-chan model.Update {
	ch := make(chan model.Update, f.bufSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.outputs = append(f.outputs, subscriber{name: name, ch: ch})
	return ch
}

// Publish delivers u to every subscriber without blocking.
func (f *FanOut) Publish(ctx context.Context, u model.Update) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}
	for _, s := range f.outputs {
		select {
		case s.ch <- u:
		default:
			if f.OnDrop != nil {
				f.OnDrop(s.name)
			} else {
				log.Printf("[bus] subscriber %s full, dropping update %s@%s", s.name, u.Symbol, u.TS.Format("15:04:05"))
			}
		}
	}
	return nil
}

// Close closes every subscriber channel. Safe to call more than once.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, s := range f.outputs {
		close(s.ch)
	}
}
