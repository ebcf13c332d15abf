package channel

import (
	"runtime"
	"sync/atomic"
)

// WaitStrategy implements an adaptive spin-wait strategy.
//
// The spin limit grows when spinning finds work and shrinks when the caller
// had to fall back to sleeping. It is safe for one waiter at a time.
type WaitStrategy struct {
	CurrentLimit int32
	MinSpin      int32
	MaxSpin      int32
	IncStep      int32
	DecStep      int32
}

// NewWaitStrategy creates a new WaitStrategy with default values.
func NewWaitStrategy() *WaitStrategy {
	return &WaitStrategy{
		CurrentLimit: 2000,
		MinSpin:      100,
		MaxSpin:      20000,
		IncStep:      200,
		DecStep:      100,
	}
}

// Wait spins until condition returns true or the spin limit is reached, then
// runs sleepAction once and checks the condition again.
//
// Returns true if the condition was met.
func (w *WaitStrategy) Wait(condition func() bool, sleepAction func()) bool {
	limit := atomic.LoadInt32(&w.CurrentLimit)

	for i := int32(0); i < limit; i++ {
		if condition() {
			w.adjust(limit, true)
			return true
		}
		// Yield every 64 iterations.
		if i&0x3F == 0 {
			runtime.Gosched()
		}
	}

	w.adjust(limit, false)
	sleepAction()
	return condition()
}

func (w *WaitStrategy) adjust(limit int32, success bool) {
	next := limit
	if success {
		next = min(limit+w.IncStep, w.MaxSpin)
	} else {
		next = max(limit-w.DecStep, w.MinSpin)
	}
	if next != limit {
		atomic.StoreInt32(&w.CurrentLimit, next)
	}
}
