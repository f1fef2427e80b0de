// ABOUTME: Manages live client push channels, handles registration, and delivers payloads.
// ABOUTME: Central coordinator mapping user identity to the current connection handle.

package connection

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Channel is the push side of a live client connection. Implementations must
// tolerate Close being called more than once.
type Channel interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// SendResult reports the outcome of a delivery attempt.
type SendResult int

const (
	// Delivered means the payload was written to the user's channel.
	Delivered SendResult = iota
	// NotConnected means no live channel exists for the user. A failed write
	// also reports NotConnected after evicting the dead entry, since the
	// request that triggered delivery must not fail merely because the
	// recipient disappeared.
	NotConnected
)

// shardCount sets how finely the registry is partitioned. Entries for
// different users hash to independent shards so they do not contend.
const shardCount = 32

// entry holds the current channel for one user.
type entry struct {
	ch          Channel
	connectedAt time.Time
	writeMu     sync.Mutex // serializes Send for this channel
}

type shard struct {
	mu    sync.Mutex
	conns map[string]*entry
}

// Registry maps user identity to the single active push channel for that
// user. At most one entry exists per user; registering a new connection
// closes and replaces any prior handle.
type Registry struct {
	shards [shardCount]shard
	logger *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger: logger.With("component", "connections"),
	}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]*entry)
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &r.shards[h.Sum32()%shardCount]
}

// Register installs ch as the current handle for userID.
// Any prior handle for the same user is closed and replaced.
func (r *Registry) Register(userID string, ch Channel) {
	s := r.shardFor(userID)

	s.mu.Lock()
	prev := s.conns[userID]
	s.conns[userID] = &entry{ch: ch, connectedAt: time.Now()}
	s.mu.Unlock()

	if prev != nil {
		// Close outside the shard lock; the old peer may be slow to go away
		_ = prev.ch.Close()
		r.logger.Info("=== CLIENT RECONNECTED ===",
			"user_id", userID,
			"total_connections", r.Count(),
		)
		return
	}

	r.logger.Info("=== CLIENT CONNECTED ===",
		"user_id", userID,
		"total_connections", r.Count(),
	)
}

// Unregister removes the entry for userID only if it still holds ch.
// A stale disconnect for a handle that was already replaced is a no-op, so
// it can never evict a newer connection.
func (r *Registry) Unregister(userID string, ch Channel) {
	s := r.shardFor(userID)

	s.mu.Lock()
	cur, ok := s.conns[userID]
	if ok && cur.ch == ch {
		delete(s.conns, userID)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if ok {
		r.logger.Info("=== CLIENT DISCONNECTED ===",
			"user_id", userID,
			"total_connections", r.Count(),
		)
	}
}

// Lookup returns the current channel for userID, if any.
func (r *Registry) Lookup(userID string) (Channel, bool) {
	s := r.shardFor(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.conns[userID]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// Send attempts to push payload to userID's channel. Writes for the same
// user serialize; writes to different users proceed independently. If the
// write fails the entry is evicted and closed, and the result is
// NotConnected rather than an error.
func (r *Registry) Send(ctx context.Context, userID string, payload []byte) SendResult {
	s := r.shardFor(userID)

	s.mu.Lock()
	e, ok := s.conns[userID]
	s.mu.Unlock()

	if !ok {
		return NotConnected
	}

	e.writeMu.Lock()
	err := e.ch.Send(ctx, payload)
	e.writeMu.Unlock()

	if err != nil {
		// Peer vanished mid-send: evict lazily, but only if the entry
		// wasn't already replaced by a fresh connection.
		s.mu.Lock()
		if cur, ok := s.conns[userID]; ok && cur == e {
			delete(s.conns, userID)
		}
		s.mu.Unlock()
		_ = e.ch.Close()

		r.logger.Warn("evicted dead connection on failed send",
			"user_id", userID,
			"error", err,
		)
		return NotConnected
	}

	return Delivered
}

// Count returns the number of live connections across all shards.
func (r *Registry) Count() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		total += len(s.conns)
		s.mu.Unlock()
	}
	return total
}
