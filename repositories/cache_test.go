package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaychat/errors"
)

func TestCache(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	cache := NewCache(db)

	t.Run("should round-trip a value", func(t *testing.T) {
		req.NoError(cache.Set("score:user-1", []byte("50"), 24*time.Hour))

		value, err := cache.Get("score:user-1")
		req.NoError(err)
		req.Equal([]byte("50"), value)
	})

	t.Run("should report a miss for an unknown key", func(t *testing.T) {
		_, err := cache.Get("score:ghost")
		req.ErrorIs(err, errors.ErrCacheMiss)
	})

	t.Run("should miss after delete", func(t *testing.T) {
		req.NoError(cache.Set("score:user-2", []byte("45"), 24*time.Hour))
		req.NoError(cache.Del("score:user-2"))

		_, err := cache.Get("score:user-2")
		req.ErrorIs(err, errors.ErrCacheMiss)
	})

	t.Run("should expire entries after their TTL", func(t *testing.T) {
		req.NoError(cache.Set("score:short", []byte("10"), 1*time.Second))

		time.Sleep(1100 * time.Millisecond)

		_, err := cache.Get("score:short")
		req.ErrorIs(err, errors.ErrCacheMiss)
	})
}
