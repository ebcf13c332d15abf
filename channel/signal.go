package channel

import (
	"context"
	"time"
)

// Signaler is the out-of-band wake mechanism between the two sides.
//
// Signal tells the waiter that the shared state changed. Wait blocks for at
// most timeout or until a signal arrives. Signals are coalesced, so a waiter
// must always re-check the queue after waking.
type Signaler interface {
	Signal() error
	Wait(timeout time.Duration) error
}

// LocalSignaler is an in-process Signaler for two sides living in the same
// address space.
type LocalSignaler struct {
	ch chan struct{}
}

// NewLocalSignaler returns a ready LocalSignaler.
func NewLocalSignaler() *LocalSignaler {
	return &LocalSignaler{ch: make(chan struct{}, 1)}
}

// Signal never blocks. A pending signal absorbs further ones.
func (s *LocalSignaler) Signal() error {
	select {
	case s.ch <- struct{}{}:
	default:
	}
	return nil
}

// Wait returns after a signal or after timeout, whichever comes first.
func (s *LocalSignaler) Wait(timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.ch:
	case <-t.C:
	}
	return nil
}

// sleepFor waits on sig for at most timeout, but no longer than ctx allows.
func sleepFor(ctx context.Context, sig Signaler, timeout time.Duration) error {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}
	return sig.Wait(timeout)
}
