// ABOUTME: Tests for the connection registry that maps users to live push channels.
// ABOUTME: Validates replace-on-register, stale unregister, send eviction, and independence.

package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel records sends and close calls for assertions.
type fakeChannel struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	sendErr error
}

func (f *fakeChannel) Send(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(nil)
	ch := &fakeChannel{}

	r.Register("user-1", ch)

	got, ok := r.Lookup("user-1")
	require.True(t, ok)
	assert.Equal(t, Channel(ch), got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Register_ReplacesAndClosesPrior(t *testing.T) {
	r := NewRegistry(nil)
	first := &fakeChannel{}
	second := &fakeChannel{}

	r.Register("user-1", first)
	r.Register("user-1", second)

	// At most one entry per user; the prior handle is closed
	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Equal(t, 1, r.Count())

	got, ok := r.Lookup("user-1")
	require.True(t, ok)
	assert.Equal(t, Channel(second), got)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(nil)
	ch := &fakeChannel{}

	r.Register("user-1", ch)
	r.Unregister("user-1", ch)

	_, ok := r.Lookup("user-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_Unregister_StaleHandleIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	old := &fakeChannel{}
	current := &fakeChannel{}

	r.Register("user-1", old)
	r.Register("user-1", current)

	// The old connection's deferred disconnect must not evict the new one
	r.Unregister("user-1", old)

	got, ok := r.Lookup("user-1")
	require.True(t, ok)
	assert.Equal(t, Channel(current), got)
}

func TestRegistry_Send_Delivered(t *testing.T) {
	r := NewRegistry(nil)
	ch := &fakeChannel{}
	r.Register("user-1", ch)

	result := r.Send(context.Background(), "user-1", []byte(`{"output":"hi"}`))

	assert.Equal(t, Delivered, result)
	assert.Equal(t, 1, ch.sentCount())
}

func TestRegistry_Send_NotConnected(t *testing.T) {
	r := NewRegistry(nil)

	result := r.Send(context.Background(), "nobody", []byte("x"))

	assert.Equal(t, NotConnected, result)
}

func TestRegistry_Send_FailureEvictsEntry(t *testing.T) {
	r := NewRegistry(nil)
	ch := &fakeChannel{sendErr: errors.New("broken pipe")}
	r.Register("user-1", ch)

	result := r.Send(context.Background(), "user-1", []byte("x"))

	// A failed write is not an error, it's a not-connected outcome,
	// and the dead entry is gone.
	assert.Equal(t, NotConnected, result)
	assert.True(t, ch.isClosed())
	_, ok := r.Lookup("user-1")
	assert.False(t, ok)
}

func TestRegistry_Send_AfterEvictionReconnectWorks(t *testing.T) {
	r := NewRegistry(nil)
	dead := &fakeChannel{sendErr: errors.New("broken pipe")}
	r.Register("user-1", dead)

	assert.Equal(t, NotConnected, r.Send(context.Background(), "user-1", []byte("x")))

	// A reconnect after eviction gets a clean slate
	fresh := &fakeChannel{}
	r.Register("user-1", fresh)
	assert.Equal(t, Delivered, r.Send(context.Background(), "user-1", []byte("x")))

	got, ok := r.Lookup("user-1")
	require.True(t, ok)
	assert.Equal(t, Channel(fresh), got)
}

func TestRegistry_DistinctUsersIndependent(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n)
			ch := &fakeChannel{}
			r.Register(userID, ch)
			result := r.Send(context.Background(), userID, []byte("ping"))
			assert.Equal(t, Delivered, result)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 64, r.Count())
}

func TestRegistry_ConcurrentRegisterSameUser(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	channels := make([]*fakeChannel, 20)
	for i := range channels {
		channels[i] = &fakeChannel{}
		wg.Add(1)
		go func(ch *fakeChannel) {
			defer wg.Done()
			r.Register("user-1", ch)
		}(channels[i])
	}
	wg.Wait()

	// Exactly one survives
	assert.Equal(t, 1, r.Count())
	open := 0
	for _, ch := range channels {
		if !ch.isClosed() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}
