package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"relaychat/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func publicMessage(channel, author, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:      uuid.New(),
		Author:  author,
		Channel: channel,
		Content: content,
		Type:    domain.MessagePublic,
		At:      at,
	}
}

func TestMessageRepository_StoreAndGet(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default())

	at := time.Now().UTC()
	stored := []domain.Message{
		publicMessage("general", "alice", "first", at),
		publicMessage("general", "bob", "second", at.Add(1*time.Minute)),
		publicMessage("general", "clara", "third", at.Add(2*time.Minute)),
	}

	t.Run("should return messages in chronological order", func(t *testing.T) {
		for _, message := range stored {
			req.NoError(repository.StoreMessage(message))
		}

		fetched, err := repository.GetMessages("general", 0)
		req.NoError(err)
		req.Len(fetched, 3)
		req.Equal("first", fetched[0].Content)
		req.Equal("second", fetched[1].Content)
		req.Equal("third", fetched[2].Content)
	})

	t.Run("should keep only the latest messages when a limit applies", func(t *testing.T) {
		fetched, err := repository.GetMessages("general", 2)
		req.NoError(err)
		req.Len(fetched, 2)
		// The oldest message falls off, order stays chronological.
		req.Equal("second", fetched[0].Content)
		req.Equal("third", fetched[1].Content)
	})

	t.Run("should not leak messages across channels", func(t *testing.T) {
		req.NoError(repository.StoreMessage(publicMessage("random", "dave", "hello", at)))

		fetched, err := repository.GetMessages("random", 0)
		req.NoError(err)
		req.Len(fetched, 1)
		req.Equal("dave", fetched[0].Author)
	})

	t.Run("should return empty history for an unknown channel", func(t *testing.T) {
		fetched, err := repository.GetMessages("ghost-town", 0)
		req.NoError(err)
		req.Empty(fetched)
	})
}

func TestMessageRepository_PrivateMessageRoundTrip(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default())

	private := domain.Message{
		ID:      uuid.New(),
		Author:  "alice",
		Channel: "general",
		Content: "psst",
		Type:    domain.MessagePrivate,
		Target:  "bob",
		At:      time.Now().UTC(),
	}
	req.NoError(repository.StoreMessage(private))

	fetched, err := repository.GetMessages("general", 0)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal(domain.MessagePrivate, fetched[0].Type)
	req.Equal("bob", fetched[0].Target)
	req.Equal(private.ID, fetched[0].ID)
}
