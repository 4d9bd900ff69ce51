// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
// A nil ReceiverID marks a public message, delivered to every connected session.
type Message struct {
	ID         uuid.UUID // unique identifier
	Content    string
	SenderID   int64
	ReceiverID *int64
	Lang       string // ISO 639-1 code detected at moderation time, empty when unknown
	CreatedAt  time.Time
}

func (m Message) IsPublic() bool {
	return m.ReceiverID == nil
}

// Participants returns the unordered pair of a private conversation.
// The lower ID always comes first so both directions share one key.
func (m Message) Participants() (int64, int64) {
	if m.ReceiverID == nil {
		return m.SenderID, m.SenderID
	}
	a, b := m.SenderID, *m.ReceiverID
	if a > b {
		a, b = b, a
	}
	return a, b
}
