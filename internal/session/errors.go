package session

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Session wraps exactly one of them.
var (
	// ErrConfig marks input rejected before any state was touched: a missing
	// or invalid symbol, non-positive capital, or a malformed candle.
	ErrConfig = errors.New("config error")

	// ErrTransport marks a failed history or price fetch. Session state is
	// left as it was before the call.
	ErrTransport = errors.New("transport error")

	// ErrState marks an operation that does not apply in the current state.
	// It is never fatal.
	ErrState = errors.New("state error")
)

// ErrNotRunning is returned by Ingest and Tick while the session is stopped.
var ErrNotRunning = fmt.Errorf("%w: session not running", ErrState)

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }

// IsState reports whether err is a StateError.
func IsState(err error) bool { return errors.Is(err, ErrState) }
