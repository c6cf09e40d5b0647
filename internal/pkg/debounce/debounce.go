package debounce

import (
	"sync"
	"time"
)

// Debouncer delays calls to fn until no new call has arrived for the wait
// period, then invokes fn once with the most recent argument.
type Debouncer[T any] struct {
	wait time.Duration
	fn   func(T)

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
	last  T
}

// New creates a trailing-edge debouncer around fn.
func New[T any](wait time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{wait: wait, fn: fn}
}

// Call schedules fn(arg), cancelling any call still pending.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.last = arg
	d.timer = time.AfterFunc(d.wait, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	// Stop can lose the race with an already expired timer; the sequence check drops it.
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	arg := d.last
	d.timer = nil
	var zero T
	d.last = zero
	d.mu.Unlock()

	d.fn(arg)
}

// Pending reports whether a call is scheduled and has not fired yet.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels the pending call, if any.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	var zero T
	d.last = zero
}

// Debounce wraps fn so that bursts of calls collapse into one.
func Debounce[T any](wait time.Duration, fn func(T)) func(T) {
	return New(wait, fn).Call
}
