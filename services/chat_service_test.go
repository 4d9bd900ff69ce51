package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-gateway/domain"
	"chat-gateway/domain/event"
	"chat-gateway/errors"
	"chat-gateway/moderation"
	"chat-gateway/repositories"
	"chat-gateway/runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// recordingSink captures everything delivered to one session.
type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	closed bool
}

func (s *recordingSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

func (s *recordingSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, e := range s.events {
		names[i] = e.EventName()
	}
	return names
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type chatFixture struct {
	service  *ChatService
	registry *runtime.Registry
	messages repositories.MessageRepository
	users    *repositories.UserRepository
}

func newChatFixture(t *testing.T) chatFixture {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	users, err := repositories.NewUserRepository(db)
	req.NoError(err)
	t.Cleanup(func() { _ = users.Close() })

	messages := repositories.NewMessageRepository(db, slog.Default())
	registry := runtime.NewRegistry()

	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	req.NoError(err)

	service := NewChatService(slog.Default(), registry, messages, users, &moderator, 50, 500)
	return chatFixture{service: service, registry: registry, messages: messages, users: users}
}

func (f chatFixture) createUser(t *testing.T, username string) domain.User {
	t.Helper()
	user, err := f.users.CreateUser(username, username+"@example.com", "hash")
	require.NoError(t, err)
	return user
}

func (f chatFixture) join(t *testing.T, user domain.User) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	require.NoError(t, f.service.Join(context.Background(), user, sink))
	return sink
}

func TestChatService_Join_Welcome_Sequence(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)
	ctx := context.Background()

	alice := fixture.createUser(t, "alice")
	bob := fixture.createUser(t, "bob")

	// Given bob is online and a public message already exists
	bobSink := fixture.join(t, bob)
	req.NoError(fixture.service.SendMessage(ctx, domain.SendMessageCommand{
		SenderID: bob.ID,
		Content:  "welcome around",
	}))
	bobSink.Reset()

	// When alice joins
	aliceSink := fixture.join(t, alice)

	// Then she receives the full welcome sequence, in order
	req.Equal([]string{"online_users", "auth_status", "user_status_change", "previous_messages"},
		aliceSink.Names())

	events := aliceSink.Events()

	// The roster holds everyone but herself
	roster := events[0].(event.OnlineUsers)
	req.Len(roster, 1)
	req.Equal(bob.ID, roster[0].ID)
	req.True(roster[0].IsOnline)

	// The identity echo matches the authenticated user
	status := events[1].(event.AuthStatus)
	req.Equal(alice.ID, status.User.ID)
	req.Equal("alice", status.User.Username)

	// The presence broadcast announces her as online
	change := events[2].(event.UserStatusChange)
	req.Equal(alice.ID, change.UserID)
	req.True(change.IsOnline)

	// History replays in ascending order with the sender joined in
	history := events[3].(event.PreviousMessages)
	req.Len(history, 1)
	req.Equal("welcome around", history[0].Content)
	req.Equal(bob.ID, history[0].Sender.ID)
	req.Equal("bob", history[0].Sender.Username)

	// And bob observed her arrival
	req.Equal([]string{"user_status_change"}, bobSink.Names())
}

func TestChatService_Public_Message_Reaches_Everyone_Once(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)
	ctx := context.Background()

	alice := fixture.createUser(t, "alice")
	bob := fixture.createUser(t, "bob")
	clara := fixture.createUser(t, "clara")

	sinks := map[string]*recordingSink{
		"alice": fixture.join(t, alice),
		"bob":   fixture.join(t, bob),
		"clara": fixture.join(t, clara),
	}
	for _, sink := range sinks {
		sink.Reset()
	}

	// When alice posts a public message
	req.NoError(fixture.service.SendMessage(ctx, domain.SendMessageCommand{
		SenderID: alice.ID,
		Content:  "hello everyone",
	}))

	// Then every connected session, sender included, gets exactly one copy
	for name, sink := range sinks {
		names := sink.Names()
		req.Equal([]string{"new_message"}, names, "sink %s", name)

		delivered := sink.Events()[0].(event.NewMessage)
		req.Equal("hello everyone", delivered.Content)
		req.Equal(alice.ID, delivered.SenderID)
		req.Nil(delivered.ReceiverID)
		req.Equal("alice", delivered.Sender.Username)
	}

	// And the message was persisted before delivery
	stored, err := fixture.messages.QueryPublic(0)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("hello everyone", stored[0].Content)
}

func TestChatService_Private_Message_Online_Receiver(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)
	ctx := context.Background()

	alice := fixture.createUser(t, "alice")
	bob := fixture.createUser(t, "bob")
	clara := fixture.createUser(t, "clara")

	aliceSink := fixture.join(t, alice)
	bobSink := fixture.join(t, bob)
	claraSink := fixture.join(t, clara)
	aliceSink.Reset()
	bobSink.Reset()
	claraSink.Reset()

	// When alice messages bob privately
	req.NoError(fixture.service.SendMessage(ctx, domain.SendMessageCommand{
		SenderID:   alice.ID,
		Content:    "just for you",
		ReceiverID: &bob.ID,
	}))

	// Then bob receives it and alice gets her echo
	req.Equal([]string{"new_private_message"}, bobSink.Names())
	req.Equal([]string{"new_private_message"}, aliceSink.Names())

	delivered := bobSink.Events()[0].(event.NewPrivateMessage)
	req.Equal("just for you", delivered.Content)
	req.Equal(alice.ID, delivered.SenderID)
	req.Equal(bob.ID, *delivered.ReceiverID)

	// And nobody else hears about it
	req.Empty(claraSink.Names())
}

func TestChatService_Private_Message_Offline_Receiver(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)
	ctx := context.Background()

	alice := fixture.createUser(t, "alice")
	bob := fixture.createUser(t, "bob")

	// Given only alice is online
	aliceSink := fixture.join(t, alice)
	aliceSink.Reset()

	// When she messages the offline bob
	req.NoError(fixture.service.SendMessage(ctx, domain.SendMessageCommand{
		SenderID:   alice.ID,
		Content:    "see you later",
		ReceiverID: &bob.ID,
	}))

	// Then only her echo is delivered
	req.Equal([]string{"new_private_message"}, aliceSink.Names())

	// And the message is persisted for bob's next history fetch
	stored, err := fixture.messages.QueryBetween(alice.ID, bob.ID, 0)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("see you later", stored[0].Content)
}

func TestChatService_Empty_Content_Rejected(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)
	ctx := context.Background()

	alice := fixture.createUser(t, "alice")
	aliceSink := fixture.join(t, alice)
	aliceSink.Reset()

	err := fixture.service.SendMessage(ctx, domain.SendMessageCommand{
		SenderID: alice.ID,
		Content:  "   ",
	})
	req.ErrorIs(err, errors.ErrEmptyContent)

	// Nothing delivered, nothing persisted
	req.Empty(aliceSink.Names())
	stored, err := fixture.messages.QueryPublic(0)
	req.NoError(err)
	req.Empty(stored)
}

func TestChatService_Content_Too_Long_Rejected(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)

	alice := fixture.createUser(t, "alice")
	fixture.join(t, alice)

	long := make([]rune, 501)
	for i := range long {
		long[i] = 'a'
	}
	err := fixture.service.SendMessage(context.Background(), domain.SendMessageCommand{
		SenderID: alice.ID,
		Content:  string(long),
	})
	req.ErrorIs(err, errors.ErrContentTooLong)
}

func TestChatService_Message_Content_Is_Censored(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)

	alice := fixture.createUser(t, "alice")
	aliceSink := fixture.join(t, alice)
	aliceSink.Reset()

	req.NoError(fixture.service.SendMessage(context.Background(), domain.SendMessageCommand{
		SenderID: alice.ID,
		Content:  "what a badger move",
	}))

	// The censored form is what gets delivered and persisted
	delivered := aliceSink.Events()[0].(event.NewMessage)
	req.Equal("what a ****** move", delivered.Content)

	stored, err := fixture.messages.QueryPublic(0)
	req.NoError(err)
	req.Equal("what a ****** move", stored[0].Content)
}

func TestChatService_Private_History_Ascending(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)
	ctx := context.Background()

	alice := fixture.createUser(t, "alice")
	bob := fixture.createUser(t, "bob")

	aliceSink := fixture.join(t, alice)
	bobSink := fixture.join(t, bob)

	// Given an alternating conversation with explicit timestamps
	at := time.Now().UTC()
	exchanges := []struct {
		sender, receiver int64
		content          string
	}{
		{alice.ID, bob.ID, "ping"},
		{bob.ID, alice.ID, "pong"},
		{alice.ID, bob.ID, "ping again"},
	}
	for i, exchange := range exchanges {
		receiver := exchange.receiver
		req.NoError(fixture.service.SendMessage(ctx, domain.SendMessageCommand{
			SenderID:   exchange.sender,
			Content:    exchange.content,
			ReceiverID: &receiver,
			CreatedAt:  at.Add(time.Duration(i) * time.Second),
		}))
	}
	aliceSink.Reset()
	bobSink.Reset()

	// When alice asks for the conversation
	req.NoError(fixture.service.PrivateHistory(ctx, domain.GetPrivateMessagesCommand{
		RequesterID: alice.ID,
		UserID:      bob.ID,
	}, aliceSink))

	// Then only she receives it, oldest first
	req.Empty(bobSink.Names())
	req.Equal([]string{"private_messages"}, aliceSink.Names())

	answer := aliceSink.Events()[0].(event.PrivateMessages)
	req.Equal(bob.ID, answer.UserID)
	req.Len(answer.Messages, 3)
	req.Equal("ping", answer.Messages[0].Content)
	req.Equal("pong", answer.Messages[1].Content)
	req.Equal("ping again", answer.Messages[2].Content)
	req.Equal("bob", answer.Messages[1].Sender.Username)
}

func TestChatService_Reconnect_Replaces_Session(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)
	ctx := context.Background()

	alice := fixture.createUser(t, "alice")
	bob := fixture.createUser(t, "bob")

	bobSink := fixture.join(t, bob)
	first := fixture.join(t, alice)
	bobSink.Reset()

	// When alice connects again from elsewhere
	second := fixture.join(t, alice)

	// Then the first session's sink is force-closed and one entry remains
	req.True(first.Closed())
	req.Equal(2, fixture.registry.Count())
	bobSink.Reset()

	// When the stale session finally tears down
	fixture.service.Leave(ctx, alice.ID, first)

	// Then alice stays online and nobody saw her leave
	req.True(fixture.registry.IsOnline(alice.ID))
	req.Empty(bobSink.Names())

	// When the live session tears down
	fixture.service.Leave(ctx, alice.ID, second)

	// Then she goes offline and the change is broadcast
	req.False(fixture.registry.IsOnline(alice.ID))
	req.Equal([]string{"user_status_change"}, bobSink.Names())
	change := bobSink.Events()[0].(event.UserStatusChange)
	req.Equal(alice.ID, change.UserID)
	req.False(change.IsOnline)
}

func TestChatService_Private_History_Pinned_To_Asking_Session(t *testing.T) {
	req := require.New(t)
	fixture := newChatFixture(t)
	ctx := context.Background()

	alice := fixture.createUser(t, "alice")
	bob := fixture.createUser(t, "bob")

	first := fixture.join(t, alice)
	first.Reset()

	// Given alice reconnected after asking, so the registry now maps
	// her to a different session
	second := fixture.join(t, alice)
	second.Reset()

	// When the answer is produced for the session that asked
	err := fixture.service.PrivateHistory(ctx, domain.GetPrivateMessagesCommand{
		RequesterID: alice.ID,
		UserID:      bob.ID,
	}, first)

	// Then the replacement session never sees a reply it did not
	// request, and the stale sink reports the failed delivery
	req.Error(err)
	req.Empty(second.Names())

	// And a live asking session receives its answer directly, without
	// a registry lookup
	detached := &recordingSink{}
	req.NoError(fixture.service.PrivateHistory(ctx, domain.GetPrivateMessagesCommand{
		RequesterID: alice.ID,
		UserID:      bob.ID,
	}, detached))
	req.Equal([]string{"private_messages"}, detached.Names())
	req.Empty(second.Names())
}
