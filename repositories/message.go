package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-gateway/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	AppendMessage(message domain.Message) error
	QueryPublic(limit int) ([]domain.Message, error)
	QueryBetween(a, b int64, limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// storedMessage is the on-disk shape of a message.
type storedMessage struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID *int64 `json:"receiver_id,omitempty"`
	Lang       string `json:"lang,omitempty"`
	At         int64  `json:"at"` // UnixNano
}

// AppendMessage persists a message in BadgerDB.
// Public messages live under "pub:{timestamp_padded}:{uuid}"; private
// messages under "dm:{low_id}:{high_id}:{timestamp_padded}:{uuid}" so
// both directions of a conversation share one prefix. The 19-digit
// zero padding keeps keys lexicographically ordered by time, and the
// UUID disambiguates two messages landing on the same nanosecond.
func (m MessageRepository) AppendMessage(message domain.Message) error {
	bytes, err := json.Marshal(fromDomain(message))
	if err != nil {
		return err
	}
	key := messageKey(message)
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// QueryPublic returns up to limit public messages, newest first.
// Callers reverse the slice when they need ascending delivery order.
func (m MessageRepository) QueryPublic(limit int) ([]domain.Message, error) {
	return m.scanReverse("pub:", limit)
}

// QueryBetween returns up to limit messages of the (a, b) conversation,
// newest first, regardless of which side sent them.
func (m MessageRepository) QueryBetween(a, b int64, limit int) ([]domain.Message, error) {
	if a > b {
		a, b = b, a
	}
	return m.scanReverse(fmt.Sprintf("dm:%d:%d:", a, b), limit)
}

// scanReverse walks a key prefix backwards, collecting the most recent
// entries first thanks to the padded timestamps in the keys.
func (m MessageRepository) scanReverse(prefixStr string, limit int) ([]domain.Message, error) {
	var rawValues [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key for this prefix, then walk back.
		seekKey := append([]byte(prefixStr), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(rawValues) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				rawValues = append(rawValues, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(rawValues))
	for _, raw := range rawValues {
		var stored storedMessage
		if err = json.Unmarshal(raw, &stored); err != nil {
			return nil, err
		}
		message, err := toDomain(stored)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func messageKey(message domain.Message) string {
	if message.IsPublic() {
		return fmt.Sprintf("pub:%019d:%s", message.CreatedAt.UnixNano(), message.ID)
	}
	low, high := message.Participants()
	return fmt.Sprintf("dm:%d:%d:%019d:%s", low, high, message.CreatedAt.UnixNano(), message.ID)
}

func fromDomain(message domain.Message) storedMessage {
	return storedMessage{
		ID:         message.ID.String(),
		Content:    message.Content,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Lang:       message.Lang,
		At:         message.CreatedAt.UnixNano(),
	}
}

func toDomain(stored storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         parsedID,
		Content:    stored.Content,
		SenderID:   stored.SenderID,
		ReceiverID: stored.ReceiverID,
		Lang:       stored.Lang,
		CreatedAt:  time.Unix(0, stored.At).UTC(),
	}, nil
}
