// Package gateway owns the WebSocket surface of the chat service: the
// upgrade handshake, per-session lifecycle, and the event wire format.
package gateway

import (
	"encoding/json"
	"fmt"

	"chat-gateway/domain"
	"chat-gateway/domain/event"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Envelope is the inbound wire frame: a tagged event name plus its
// payload. Payloads are validated per event kind before anything
// reaches the routing layer.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const (
	EventSendMessage        = "send_message"
	EventGetPrivateMessages = "get_private_messages"
)

type sendMessagePayload struct {
	Content    string `json:"content" validate:"required"`
	ReceiverID *int64 `json:"receiverId" validate:"omitempty,gt=0"`
}

type getPrivateMessagesPayload struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("frame without event name")
	}
	return env, nil
}

// SendMessageCommand validates the payload and shapes it into the
// domain intent of the sending session.
func (e Envelope) SendMessageCommand(senderID int64) (domain.SendMessageCommand, error) {
	var payload sendMessagePayload
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return domain.SendMessageCommand{}, fmt.Errorf("malformed send_message payload: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return domain.SendMessageCommand{}, err
	}
	return domain.SendMessageCommand{
		SenderID:   senderID,
		Content:    payload.Content,
		ReceiverID: payload.ReceiverID,
	}, nil
}

// PrivateMessagesCommand validates the payload of a history request.
func (e Envelope) PrivateMessagesCommand(requesterID int64) (domain.GetPrivateMessagesCommand, error) {
	var payload getPrivateMessagesPayload
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return domain.GetPrivateMessagesCommand{}, fmt.Errorf("malformed get_private_messages payload: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return domain.GetPrivateMessagesCommand{}, err
	}
	return domain.GetPrivateMessagesCommand{
		RequesterID: requesterID,
		UserID:      payload.UserID,
	}, nil
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// MarshalEvent frames an outbound event into the {event, data} envelope.
func MarshalEvent(e event.DomainEvent) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: e.EventName(), Data: e})
}
