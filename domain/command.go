package domain

import "time"

// SendMessageCommand is the intent of a connected session to post a message.
// A nil ReceiverID means a public broadcast.
type SendMessageCommand struct {
	SenderID   int64
	Content    string
	ReceiverID *int64
	CreatedAt  time.Time
}

// GetPrivateMessagesCommand asks for the conversation between the
// requester and another user.
type GetPrivateMessagesCommand struct {
	RequesterID int64
	UserID      int64
}
