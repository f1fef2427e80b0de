// ABOUTME: Thread-safe TTL tracker for dispatched-but-unanswered workflow requests.
// ABOUTME: Correlates asynchronous webhook callbacks back to the request that triggered them.

package correlation

import (
	"container/list"
	"sync"
	"time"
)

// pending stores the lifetime and list element for a tracked key.
type pending struct {
	dispatchedAt time.Time
	expiresAt    time.Time
	element      *list.Element
}

// Tracker records correlation keys for requests dispatched to the external
// workflow engine. A key is consumed at most once, no matter how many times
// the engine retries its callback; an expired or already-consumed key resolves
// to not-found. Uses a doubly-linked list to maintain insertion order for
// O(1) eviction when the tracker is at capacity.
type Tracker struct {
	mu      sync.Mutex
	keys    map[string]*pending
	order   *list.List // keys in insertion order (oldest at front)
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a tracker with the given sweep interval and maximum size.
// A background goroutine periodically discards expired entries.
func New(sweepInterval time.Duration, maxSize int) *Tracker {
	t := &Tracker{
		keys:    make(map[string]*pending),
		order:   list.New(),
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go t.sweep(sweepInterval)
	return t
}

// Track records a pending correlation for key that expires after ttl.
// Tracking an already-pending key refreshes its expiry. If the tracker is at
// capacity, the oldest entry is evicted to make room.
func (t *Tracker) Track(key string, ttl time.Duration) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if p, exists := t.keys[key]; exists {
		p.dispatchedAt = now
		p.expiresAt = now.Add(ttl)
		t.order.MoveToBack(p.element)
		return
	}

	if len(t.keys) >= t.maxSize {
		t.evictOldest()
	}

	elem := t.order.PushBack(key)
	t.keys[key] = &pending{
		dispatchedAt: now,
		expiresAt:    now.Add(ttl),
		element:      elem,
	}
}

// Resolve atomically consumes the pending correlation for key.
// Returns true exactly once per Track; a second Resolve for the same key, or
// a Resolve after the entry expired, returns false. This is what makes
// duplicate or late callbacks from an at-least-once sender safe.
func (t *Tracker) Resolve(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.keys[key]
	if !ok {
		return false
	}

	t.order.Remove(p.element)
	delete(t.keys, key)

	// An expired-then-arriving callback is treated identically to not-found.
	return time.Now().Before(p.expiresAt)
}

// Peek reports whether an unexpired entry exists for key without consuming it.
func (t *Tracker) Peek(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.keys[key]
	return ok && time.Now().Before(p.expiresAt)
}

// Cancel discards the pending correlation for key without consuming it.
// Used to roll back after a synchronous dispatch failure so no phantom
// pending entry is left behind. Unknown keys are ignored.
func (t *Tracker) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.keys[key]; ok {
		t.order.Remove(p.element)
		delete(t.keys, key)
	}
}

// Len returns the number of pending correlations, expired entries included.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (t *Tracker) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	t.order.Remove(front)
	delete(t.keys, key)
}

// sweep runs in a background goroutine, periodically removing expired entries.
func (t *Tracker) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runSweep()
		case <-t.done:
			return
		}
	}
}

// runSweep removes all expired entries.
func (t *Tracker) runSweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for key, p := range t.keys {
		if now.After(p.expiresAt) {
			t.order.Remove(p.element)
			delete(t.keys, key)
		}
	}
}

// Close stops the background sweep goroutine. It is safe to call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		close(t.done)
		t.closed = true
	}
}
