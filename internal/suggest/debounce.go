// Package suggest turns debounced free-text input into autocomplete values taken from list-search results.
package suggest

import (
	"context"
	"sync"
	"time"
)

// DefaultDelay is the quiet period before a term is acted upon.
const DefaultDelay = 1500 * time.Millisecond

// Debouncer lets only the last of a burst of calls per key proceed.
type Debouncer struct {
	delay time.Duration

	mu  sync.Mutex
	seq map[string]uint64
}

// NewDebouncer constructs a Debouncer; delay <= 0 uses DefaultDelay.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay, seq: make(map[string]uint64)}
}

// Wait blocks for the delay and reports whether no newer call for key arrived meanwhile.
func (d *Debouncer) Wait(ctx context.Context, key string) (bool, error) {
	return d.WaitFor(ctx, key, d.Mark(key))
}

// Mark registers a call for key and returns its position. Later marks supersede earlier ones.
func (d *Debouncer) Mark(key string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq[key]++
	return d.seq[key]
}

// WaitFor is Wait for a call already registered with Mark.
func (d *Debouncer) WaitFor(ctx context.Context, key string, mine uint64) (bool, error) {
	t := time.NewTimer(d.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		d.release(key, mine)
		return false, ctx.Err()
	case <-t.C:
	}
	return d.release(key, mine), nil
}

// release clears key when mine is still the latest call and reports whether it was.
func (d *Debouncer) release(key string, mine uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seq[key] != mine {
		return false
	}
	delete(d.seq, key)
	return true
}

// Pending reports how many keys have a call waiting.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seq)
}
