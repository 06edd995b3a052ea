//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=../mocks/mock_cache.go -package=mocks
package repositories

import (
	"time"

	"github.com/dgraph-io/badger/v4"

	"relaychat/errors"
)

// ICache is the opaque key/value cache used for soft state with a lifetime,
// such as behavior scores. Entries expire server-side via badger TTLs.
type ICache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration) error
	Del(key string) error
}

type Cache struct {
	db *badger.DB
}

func NewCache(db *badger.DB) ICache {
	return &Cache{db: db}
}

func cacheKey(key string) []byte { return []byte("cache:" + key) }

func (c *Cache) Get(key string) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrCacheMiss
			}
			return err
		}
		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (c *Cache) Del(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(key))
	})
}
