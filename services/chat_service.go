package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/domain/event"
	"chat-gateway/errors"
	"chat-gateway/moderation"
	"chat-gateway/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	Join(ctx context.Context, user domain.User, sink contract.EventSink) error
	Leave(ctx context.Context, userID int64, sink contract.EventSink)
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) error
	PrivateHistory(ctx context.Context, cmd domain.GetPrivateMessagesCommand, sink contract.EventSink) error
}

// ChatService routes every inbound intent to the right set of sinks.
// It composes the presence registry and the message store; persistence
// always completes before any delivery is attempted.
type ChatService struct {
	registry         contract.IRegistry
	messages         repositories.IMessageRepository
	users            repositories.IUserRepository
	moderator        *moderation.Moderator
	log              *slog.Logger
	historyLimit     int
	maxContentLength int
}

func NewChatService(log *slog.Logger, registry contract.IRegistry,
	messages repositories.IMessageRepository, users repositories.IUserRepository,
	moderator *moderation.Moderator, historyLimit, maxContentLength int) *ChatService {
	return &ChatService{
		registry:         registry,
		messages:         messages,
		users:            users,
		moderator:        moderator,
		log:              log,
		historyLimit:     historyLimit,
		maxContentLength: maxContentLength,
	}
}

// Join activates a freshly authenticated session: registers its sink,
// runs the welcome sequence, and announces the presence change.
// Registration happens first so no observer can see a broadcast for a
// state not yet reflected in lookups.
func (s *ChatService) Join(ctx context.Context, user domain.User, sink contract.EventSink) error {
	evicted, replaced := s.registry.Register(user, sink)
	if replaced {
		// Last-connection-wins: the stale sink is force-closed so its
		// session tears down instead of lingering half-delivered.
		s.log.Info("Replacing previous session", "user_id", user.ID)
		evicted.Close()
	}

	roster := s.registry.ListOnline(&user.ID)
	if err := sink.Consume(ctx, event.OnlineUsers(roster)); err != nil {
		return err
	}
	if err := sink.Consume(ctx, event.AuthStatus{User: user.Summary(true)}); err != nil {
		return err
	}

	s.broadcast(ctx, event.UserStatusChange{UserID: user.ID, IsOnline: true})

	history, err := s.publicHistory()
	if err != nil {
		return err
	}
	return sink.Consume(ctx, history)
}

// Leave runs the teardown side of presence. The sink identifies the
// departing session: when the user already reconnected elsewhere the
// registry entry belongs to the newer connection and nothing happens.
func (s *ChatService) Leave(ctx context.Context, userID int64, sink contract.EventSink) {
	if !s.registry.Release(userID, sink) {
		return
	}
	s.broadcast(ctx, event.UserStatusChange{UserID: userID, IsOnline: false})
}

// SendMessage validates, moderates, persists, and fans out one message.
// Public messages go to every connected sink, sender included. Private
// messages go to the receiver when online (silently dropped otherwise)
// and are always echoed to the sender's own sink.
func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) error {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return errors.ErrEmptyContent
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength {
		return errors.ErrContentTooLong
	}

	censored, flagged := s.moderator.Censor(content)
	if flagged {
		s.log.Debug("Censored message content", "sender_id", cmd.SenderID)
	}

	message := domain.Message{
		ID:         uuid.New(),
		Content:    censored,
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		Lang:       moderation.DetectLang(content),
		CreatedAt:  cmd.CreatedAt,
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	// Persistence must succeed before anyone hears about the message.
	if err := s.messages.AppendMessage(message); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreFailure, err)
	}

	view := s.toView(message, map[int64]domain.UserSummary{})

	if message.IsPublic() {
		s.broadcast(ctx, event.NewMessage{MessageView: view})
		return nil
	}

	if receiverSink, ok := s.registry.Lookup(*message.ReceiverID); ok {
		if err := receiverSink.Consume(ctx, event.NewPrivateMessage{MessageView: view}); err != nil {
			// Delivery failures are absorbed: the message is persisted
			// and the sender still gets its echo.
			s.log.Warn("Private delivery failed",
				"receiver_id", *message.ReceiverID, "error", err)
		}
	}

	if senderSink, ok := s.registry.Lookup(message.SenderID); ok {
		if err := senderSink.Consume(ctx, event.NewPrivateMessage{MessageView: view}); err != nil {
			s.log.Warn("Sender echo failed", "sender_id", message.SenderID, "error", err)
		}
	}
	return nil
}

// PrivateHistory answers a conversation query. The answer goes to the
// sink of the session that asked, never to a replacement session the
// same user may have opened in the meantime.
func (s *ChatService) PrivateHistory(ctx context.Context, cmd domain.GetPrivateMessagesCommand, sink contract.EventSink) error {
	messages, err := s.messages.QueryBetween(cmd.RequesterID, cmd.UserID, s.historyLimit)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreFailure, err)
	}
	ascending(messages)

	senders := map[int64]domain.UserSummary{}
	views := lo.Map(messages, func(item domain.Message, _ int) event.MessageView {
		return s.toView(item, senders)
	})

	return sink.Consume(ctx, event.PrivateMessages{
		UserID:   cmd.UserID,
		Messages: views,
	})
}

// publicHistory builds the welcome replay: the most recent public
// messages, fetched newest-first from the store and reversed so the
// session receives them in ascending chronological order.
func (s *ChatService) publicHistory() (event.PreviousMessages, error) {
	messages, err := s.messages.QueryPublic(s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreFailure, err)
	}
	ascending(messages)

	senders := map[int64]domain.UserSummary{}
	return lo.Map(messages, func(item domain.Message, _ int) event.MessageView {
		return s.toView(item, senders)
	}), nil
}

// broadcast delivers one event to every connected sink. A sink going
// stale mid-iteration fails on its own without aborting the rest.
func (s *ChatService) broadcast(ctx context.Context, e event.DomainEvent) {
	for _, sink := range s.registry.Snapshot() {
		if err := sink.Consume(ctx, e); err != nil {
			s.log.Debug("Broadcast delivery skipped a sink", "event", e.EventName(), "error", err)
		}
	}
}

// toView joins a message with its sender summary. The cache keeps one
// history query from resolving the same sender repeatedly.
func (s *ChatService) toView(message domain.Message, senders map[int64]domain.UserSummary) event.MessageView {
	summary, ok := senders[message.SenderID]
	if !ok {
		summary = s.senderSummary(message.SenderID)
		senders[message.SenderID] = summary
	}
	return event.MessageView{
		ID:         message.ID,
		Content:    message.Content,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		CreatedAt:  message.CreatedAt,
		Sender:     summary,
	}
}

func (s *ChatService) senderSummary(senderID int64) domain.UserSummary {
	user, err := s.users.GetUserByID(senderID)
	if err != nil {
		// A sender may have been deleted since the message was stored.
		s.log.Debug("Sender lookup failed", "sender_id", senderID, "error", err)
		return domain.UserSummary{ID: senderID}
	}
	return user.Summary(s.registry.IsOnline(senderID))
}

func ascending(messages []domain.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
