//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"relaychat/domain"
	"relaychat/errors"
)

type ISessionRepository interface {
	SaveSession(session domain.Session) error
	GetSession(id string) (domain.Session, error)
	DeleteSession(id string) error
	TouchSession(id string, at time.Time) error
}

type SessionRepository struct {
	db *badger.DB
}

func NewSessionRepository(db *badger.DB) ISessionRepository {
	return &SessionRepository{db: db}
}

type diskSession struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Nickname     string    `json:"nickname"`
	Role         string    `json:"role"`
	CSRFToken    string    `json:"csrf_token"`
	UserAgent    string    `json:"user_agent"`
	LoginTime    time.Time `json:"login_time"`
	LastActivity time.Time `json:"last_activity"`
}

func sessionKey(id string) []byte { return []byte("session:" + id) }

func (s *SessionRepository) SaveSession(session domain.Session) error {
	data, err := json.Marshal(fromSession(session))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), data)
	})
}

func (s *SessionRepository) GetSession(id string) (domain.Session, error) {
	var ds diskSession
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrSessionNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ds)
		})
	})
	if err != nil {
		return domain.Session{}, err
	}
	return toSession(ds), nil
}

func (s *SessionRepository) DeleteSession(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}

// TouchSession refreshes the last-activity timestamp. Missing sessions are
// not an error here: the caller treats this as best-effort bookkeeping.
func (s *SessionRepository) TouchSession(id string, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		var ds diskSession
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ds)
		}); err != nil {
			return err
		}
		ds.LastActivity = at.UTC()
		data, err := json.Marshal(ds)
		if err != nil {
			return err
		}
		return txn.Set(sessionKey(id), data)
	})
}

func fromSession(session domain.Session) diskSession {
	return diskSession{
		ID:           session.ID,
		UserID:       session.UserID,
		Nickname:     session.Nickname,
		Role:         session.Role,
		CSRFToken:    session.CSRFToken,
		UserAgent:    session.UserAgent,
		LoginTime:    session.LoginTime.UTC(),
		LastActivity: session.LastActivity.UTC(),
	}
}

func toSession(ds diskSession) domain.Session {
	return domain.Session{
		ID:           ds.ID,
		UserID:       ds.UserID,
		Nickname:     ds.Nickname,
		Role:         ds.Role,
		CSRFToken:    ds.CSRFToken,
		UserAgent:    ds.UserAgent,
		LoginTime:    ds.LoginTime,
		LastActivity: ds.LastActivity,
	}
}
