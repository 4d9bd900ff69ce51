package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"chat-gateway/domain"
	"chat-gateway/domain/event"

	"github.com/stretchr/testify/require"
)

type Sink struct {
	closed bool
}

func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func (s *Sink) Close() {
	s.closed = true
}

func TestRegistry_Register_One_User(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := domain.User{ID: 1, Username: "alice"}
	sink := &Sink{}

	// Given no user is connected
	req.False(registry.IsOnline(alice.ID))
	req.Empty(registry.ListOnline(nil))

	// When a user registers
	evicted, replaced := registry.Register(alice, sink)

	// Then no previous sink is evicted
	req.Nil(evicted)
	req.False(replaced)

	// And the user is reachable
	req.True(registry.IsOnline(alice.ID))
	found, ok := registry.Lookup(alice.ID)
	req.True(ok)
	req.Equal(sink, found)
	req.Len(registry.Snapshot(), 1)
	req.Equal(1, registry.Count())
}

func TestRegistry_Register_Replaces_Previous_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := domain.User{ID: 1, Username: "alice"}
	first := &Sink{}
	second := &Sink{}

	// Given the user is already connected
	registry.Register(alice, first)

	// When the same user registers again
	evicted, replaced := registry.Register(alice, second)

	// Then the first sink is handed back for closing
	req.True(replaced)
	req.Equal(first, evicted)

	// And exactly one entry remains, pointing at the new sink
	req.Equal(1, registry.Count())
	found, ok := registry.Lookup(alice.ID)
	req.True(ok)
	req.Equal(second, found)
}

func TestRegistry_Release_Ignores_Stale_Sink(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := domain.User{ID: 1, Username: "alice"}
	stale := &Sink{}
	current := &Sink{}

	// Given the user reconnected, replacing its first session
	registry.Register(alice, stale)
	registry.Register(alice, current)

	// When the first session tears down
	removed := registry.Release(alice.ID, stale)

	// Then the replacement entry survives
	req.False(removed)
	req.True(registry.IsOnline(alice.ID))

	// When the current session tears down
	removed = registry.Release(alice.ID, current)

	// Then the user goes offline
	req.True(removed)
	req.False(registry.IsOnline(alice.ID))
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := domain.User{ID: 1, Username: "alice"}

	registry.Register(alice, &Sink{})
	registry.Unregister(alice.ID)
	registry.Unregister(alice.ID)

	req.False(registry.IsOnline(alice.ID))
	req.Equal(0, registry.Count())
}

func TestRegistry_ListOnline_Sorts_And_Excludes(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given three users registered out of order
	registry.Register(domain.User{ID: 3, Username: "clara"}, &Sink{})
	registry.Register(domain.User{ID: 1, Username: "alice"}, &Sink{})
	registry.Register(domain.User{ID: 2, Username: "bob"}, &Sink{})

	// When the full roster is listed
	all := registry.ListOnline(nil)

	// Then it is sorted by ID and every entry is online
	req.Len(all, 3)
	req.Equal([]int64{1, 2, 3}, []int64{all[0].ID, all[1].ID, all[2].ID})
	for _, summary := range all {
		req.True(summary.IsOnline)
	}

	// When a user asks for the roster around itself
	bobID := int64(2)
	others := registry.ListOnline(&bobID)

	// Then it does not contain its own entry
	req.Len(others, 2)
	req.Equal([]int64{1, 3}, []int64{others[0].ID, others[1].ID})
}

func TestRegistry_Concurrent_Callers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	const (
		callers    = 8
		iterations = 500
	)

	// When many sessions register, query, and tear down concurrently
	var wg sync.WaitGroup
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			user := domain.User{ID: userID, Username: fmt.Sprintf("user-%d", userID)}
			for i := 0; i < iterations; i++ {
				sink := &Sink{}
				if evicted, replaced := registry.Register(user, sink); replaced {
					evicted.Close()
				}

				for _, summary := range registry.ListOnline(&userID) {
					// A snapshot never contains the excluded caller and
					// never observes a torn entry.
					if summary.ID == userID || summary.Username == "" {
						t.Error("inconsistent roster snapshot")
						return
					}
				}
				registry.IsOnline(userID)
				registry.Snapshot()

				if i%2 == 0 {
					registry.Release(userID, sink)
				} else {
					registry.Unregister(userID)
				}
			}
		}(int64(c + 1))
	}
	wg.Wait()

	// Then every session is gone and nothing was lost along the way
	req.Equal(0, registry.Count())
	req.Empty(registry.ListOnline(nil))
	req.Empty(registry.Snapshot())
}
