// ABOUTME: Tests for the correlation tracker used to match workflow callbacks to requests.
// ABOUTME: Validates consume-once resolution, expiry, rollback, eviction, and concurrency safety.

package correlation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Resolve_NotTracked(t *testing.T) {
	tr := New(time.Minute, 100)
	defer tr.Close()

	// A key that was never tracked resolves to not-found
	assert.False(t, tr.Resolve("never-tracked"))
}

func TestTracker_Resolve_ConsumesOnce(t *testing.T) {
	tr := New(time.Minute, 100)
	defer tr.Close()

	tr.Track("user-1", 5*time.Minute)

	// First resolve consumes the entry, second sees nothing.
	// This is the duplicate-callback guard.
	assert.True(t, tr.Resolve("user-1"))
	assert.False(t, tr.Resolve("user-1"))
}

func TestTracker_Resolve_Expired(t *testing.T) {
	tr := New(time.Minute, 100)
	defer tr.Close()

	tr.Track("late-key", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	// An expired-then-arriving callback behaves like not-found
	assert.False(t, tr.Resolve("late-key"))
}

func TestTracker_Track_RefreshesExpiry(t *testing.T) {
	tr := New(time.Minute, 100)
	defer tr.Close()

	tr.Track("refresh-key", 30*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	tr.Track("refresh-key", 30*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	// Past the original TTL but within the refreshed one
	assert.True(t, tr.Resolve("refresh-key"))
}

func TestTracker_Peek_DoesNotConsume(t *testing.T) {
	tr := New(time.Minute, 100)
	defer tr.Close()

	assert.False(t, tr.Peek("absent"))

	tr.Track("peek-key", 5*time.Minute)
	assert.True(t, tr.Peek("peek-key"))
	assert.True(t, tr.Peek("peek-key"))
	assert.True(t, tr.Resolve("peek-key"))
	assert.False(t, tr.Peek("peek-key"))
}

func TestTracker_Cancel(t *testing.T) {
	tr := New(time.Minute, 100)
	defer tr.Close()

	tr.Track("rollback-key", 5*time.Minute)
	tr.Cancel("rollback-key")

	assert.False(t, tr.Resolve("rollback-key"))
	assert.Equal(t, 0, tr.Len())

	// Cancelling an unknown key is a no-op
	tr.Cancel("unknown-key")
}

func TestTracker_Sweep(t *testing.T) {
	tr := New(10*time.Millisecond, 100)
	defer tr.Close()

	tr.Track("short", 5*time.Millisecond)
	tr.Track("long", time.Minute)

	// Give the sweeper a couple of ticks
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, tr.Len())
	assert.True(t, tr.Resolve("long"))
}

func TestTracker_Eviction(t *testing.T) {
	tr := New(time.Minute, 3)
	defer tr.Close()

	tr.Track("a", time.Minute)
	tr.Track("b", time.Minute)
	tr.Track("c", time.Minute)
	tr.Track("d", time.Minute)

	// Oldest entry was evicted to make room
	assert.False(t, tr.Resolve("a"))
	assert.True(t, tr.Resolve("b"))
	assert.True(t, tr.Resolve("c"))
	assert.True(t, tr.Resolve("d"))
}

func TestTracker_ConcurrentResolve(t *testing.T) {
	tr := New(time.Minute, 1000)
	defer tr.Close()

	tr.Track("contested", 5*time.Minute)

	// Many goroutines race to resolve the same key; exactly one wins
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Resolve("contested") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestTracker_ConcurrentTrackDistinctKeys(t *testing.T) {
	tr := New(time.Minute, 10000)
	defer tr.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr.Track(fmt.Sprintf("key-%d", n), time.Minute)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, tr.Len())
}

func TestTracker_Close_Idempotent(t *testing.T) {
	tr := New(time.Minute, 100)
	tr.Close()
	tr.Close()
}
