//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"relaychat/domain"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessages(channel string, limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) IMessageRepository {
	return &MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	Type    string    `json:"type"`
	Target  string    `json:"target,omitempty"`
	At      time.Time `json:"at"`
}

// messageKey formats "msg:{channel}:{timestamp_padded}:{uuid}" so that:
//  1. Prefix scans per channel come back in chronological order thanks to
//     the 19-digit zero padding (lexicographical order).
//  2. The UUID acts as a collision disconnector if two messages arrive at
//     the same nanosecond.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.Channel, m.At.UnixNano(), m.ID))
}

func (m *MessageRepository) StoreMessage(message domain.Message) error {
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), data)
	})
}

// GetMessages returns the latest messages of a channel in chronological
// order, at most limit of them. It scans the channel prefix in reverse to
// find the tail cheaply, then flips the slice.
func (m *MessageRepository) GetMessages(channel string, limit int) ([]domain.Message, error) {
	var raws [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", channel))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key for this channel.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raws) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", limit))
				break
			}
			if err := it.Item().Value(func(val []byte) error {
				raws = append(raws, append([]byte{}, val...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var dm diskMessage
		if err := json.Unmarshal(raws[i], &dm); err != nil {
			return nil, err
		}
		message, err := toMessage(dm)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:      message.ID.String(),
		Channel: message.Channel,
		Author:  message.Author,
		Content: message.Content,
		Type:    string(message.Type),
		Target:  message.Target,
		At:      message.At.UTC(),
	}
}

func toMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:      parsedID,
		Channel: dm.Channel,
		Author:  dm.Author,
		Content: dm.Content,
		Type:    domain.MessageType(dm.Type),
		Target:  dm.Target,
		At:      dm.At.UTC(),
	}, nil
}
