//go:generate go run go.uber.org/mock/mockgen -source=channel.go -destination=../mocks/mock_channel_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"relaychat/domain"
	"relaychat/errors"
)

type IChannelRepository interface {
	CreateChannel(channel domain.Channel) error
	GetChannel(id string) (domain.Channel, error)
}

type ChannelRepository struct {
	db *badger.DB
}

func NewChannelRepository(db *badger.DB) IChannelRepository {
	return &ChannelRepository{db: db}
}

type diskChannel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func channelKey(id string) []byte { return []byte("channel:" + id) }

func (c *ChannelRepository) CreateChannel(channel domain.Channel) error {
	data, err := json.Marshal(diskChannel{
		ID:        channel.ID,
		Name:      channel.Name,
		CreatedAt: channel.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(channelKey(channel.ID), data)
	})
}

func (c *ChannelRepository) GetChannel(id string) (domain.Channel, error) {
	var dc diskChannel
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(channelKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrChannelNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dc)
		})
	})
	if err != nil {
		return domain.Channel{}, err
	}
	return domain.Channel{ID: dc.ID, Name: dc.Name, CreatedAt: dc.CreatedAt}, nil
}
