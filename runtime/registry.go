// Package runtime holds the shared in-memory state of the gateway.
// It orchestrates presence without containing business logic or domain rules.
package runtime

import (
	"sort"
	"sync"
	"time"

	"chat-gateway/contract"
	"chat-gateway/domain"
)

// PresenceEntry ties a connected user to its delivery sink.
// At most one entry exists per user at any instant.
type PresenceEntry struct {
	User        domain.User
	Sink        contract.EventSink
	ConnectedAt time.Time
}

// Registry is the single source of truth for who is online and how to
// reach them. All access goes through one lock so lookups never observe
// a torn snapshot.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]PresenceEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]PresenceEntry)}
}

// Register inserts or replaces the entry for a user. When the user is
// already connected, the previous sink is handed back so the caller can
// close it: last-connection-wins, and a stale sink must never be
// double-delivered to.
func (r *Registry) Register(user domain.User, sink contract.EventSink) (contract.EventSink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced := r.entries[user.ID]
	r.entries[user.ID] = PresenceEntry{
		User:        user,
		Sink:        sink,
		ConnectedAt: time.Now(),
	}
	if replaced {
		return previous.Sink, true
	}
	return nil, false
}

// Unregister removes the entry for a user. Idempotent: removing an
// absent user is not an error.
func (r *Registry) Unregister(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// Release removes the entry only when it still maps to the given sink.
// A session torn down after its user reconnected elsewhere must not
// evict the replacement entry. Reports whether an entry was removed.
func (r *Registry) Release(userID int64, sink contract.EventSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[userID]
	if !ok || entry.Sink != sink {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Lookup returns the current delivery sink for a user, if connected.
func (r *Registry) Lookup(userID int64) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return entry.Sink, true
}

// ListOnline snapshots the roster at call time, excluding one user when
// asked. Entries are sorted by ID so consecutive calls over the same
// state return the same sequence.
func (r *Registry) ListOnline(excluding *int64) []domain.UserSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.UserSummary, 0, len(r.entries))
	for id, entry := range r.entries {
		if excluding != nil && id == *excluding {
			continue
		}
		users = append(users, entry.User.Summary(true))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[userID]
	return ok
}

// Snapshot returns every connected sink for broadcast fanout. A sink
// going stale after the snapshot is tolerated by the delivery path.
func (r *Registry) Snapshot() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.entries))
	for _, entry := range r.entries {
		sinks = append(sinks, entry.Sink)
	}
	return sinks
}

// Count reports the number of connected sessions, for telemetry.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
