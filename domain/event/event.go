// Package event defines the outbound events a session can receive.
// Each variant carries its wire name so the gateway can frame it
// into {event, data} envelopes without reflection at call sites.
package event

import (
	"time"

	"chat-gateway/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventName() string
}

// MessageView is the delivery shape of a persisted message, joined with
// a sender summary resolved at fetch time. Every message-bearing event
// uses this single shape so history and live delivery stay consistent.
type MessageView struct {
	ID         uuid.UUID          `json:"id"`
	Content    string             `json:"content"`
	SenderID   int64              `json:"senderId"`
	ReceiverID *int64             `json:"receiverId"`
	CreatedAt  time.Time          `json:"createdAt"`
	Sender     domain.UserSummary `json:"sender"`
}

// OnlineUsers is the roster snapshot sent once on activation,
// excluding the receiving session itself.
type OnlineUsers []domain.UserSummary

func (OnlineUsers) EventName() string { return "online_users" }

// AuthStatus confirms the resolved identity to the session that just authenticated.
type AuthStatus struct {
	User domain.UserSummary `json:"user"`
}

func (AuthStatus) EventName() string { return "auth_status" }

// PreviousMessages replays recent public history in ascending creation order.
type PreviousMessages []MessageView

func (PreviousMessages) EventName() string { return "previous_messages" }

// UserStatusChange is broadcast to everyone whenever a session activates
// or tears down.
type UserStatusChange struct {
	UserID   int64 `json:"userId"`
	IsOnline bool  `json:"isOnline"`
}

func (UserStatusChange) EventName() string { return "user_status_change" }

// NewMessage is a public message fanned out to all connected sessions,
// sender included.
type NewMessage struct {
	MessageView
}

func (NewMessage) EventName() string { return "new_message" }

// NewPrivateMessage goes to the receiver's session when online, and is
// always echoed to the sender's own session.
type NewPrivateMessage struct {
	MessageView
}

func (NewPrivateMessage) EventName() string { return "new_private_message" }

// PrivateMessages answers a history request for one conversation,
// delivered to the requesting session only.
type PrivateMessages struct {
	UserID   int64         `json:"userId"`
	Messages []MessageView `json:"messages"`
}

func (PrivateMessages) EventName() string { return "private_messages" }

// Error reports a recoverable failure to the originating session.
type Error struct {
	Message string `json:"message"`
}

func (Error) EventName() string { return "error" }
