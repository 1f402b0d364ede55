// Package wake provides the single-slot wake signal each background engine
// blocks on between cycles. Multiple pings while an engine is busy coalesce
// into one pending wake.
package wake

import (
	"context"
	"sync/atomic"
	"time"
)

// Signal is an engine's wake coordinator: a coalescing wake channel plus the
// engine's running flag. Create one per engine with [NewSignal] and share it
// between the engine and whoever needs to wake it.
type Signal struct {
	ch      chan struct{}
	running atomic.Bool
}

// NewSignal creates an idle, not-running Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Ping requests an immediate engine cycle. Pings while a wake is already
// pending are collapsed; Ping never blocks.
func (s *Signal) Ping() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the earlier of: d elapses, a ping arrives, or ctx is
// cancelled. It returns ctx.Err() only in the cancelled case.
func (s *Signal) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	case <-s.ch:
		return nil
	}
}

// TryStart flips the running flag and reports whether this caller won the
// start. A second start request is a no-op.
func (s *Signal) TryStart() bool {
	return s.running.CompareAndSwap(false, true)
}

// Running reports whether the engine owning this signal has been started.
func (s *Signal) Running() bool {
	return s.running.Load()
}
