//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"relaychat/domain"
	"relaychat/errors"
)

type IUserRepository interface {
	CreateUser(user domain.User) error
	GetUserByID(id string) (domain.User, error)
	GetUserByNickname(nickname string) (domain.User, error)
	UpdateUserStatus(id, status string) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// diskUser is the storage representation of a user record.
type diskUser struct {
	ID           string     `json:"id"`
	Nickname     string     `json:"nickname"`
	PasswordHash string     `json:"password_hash"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	Banned       bool       `json:"banned"`
	BanReason    string     `json:"ban_reason,omitempty"`
	BanExpires   *time.Time `json:"ban_expires,omitempty"`
	MuteExpires  *time.Time `json:"mute_expires,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func userIDKey(id string) []byte     { return []byte("user:id:" + id) }
func userNickKey(nick string) []byte { return []byte("user:nick:" + nick) }

// CreateUser persists the record under its id and indexes the nickname.
// The nickname index makes private-message target resolution and login a
// single point lookup instead of a scan.
func (u *UserRepository) CreateUser(user domain.User) error {
	data, err := json.Marshal(fromUser(user))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userNickKey(user.Nickname)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(userIDKey(user.ID), data); err != nil {
			return err
		}
		return txn.Set(userNickKey(user.Nickname), []byte(user.ID))
	})
}

func (u *UserRepository) GetUserByID(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		found, err := getUser(txn, id)
		user = found
		return err
	})
	return user, err
}

func (u *UserRepository) GetUserByNickname(nickname string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userNickKey(nickname))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return errors.ErrUserNotFound
			}
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		found, err := getUser(txn, id)
		user = found
		return err
	})
	return user, err
}

// UpdateUserStatus rewrites the status field in place. Concurrent writers
// go through badger's transaction conflict detection.
func (u *UserRepository) UpdateUserStatus(id, status string) error {
	return u.db.Update(func(txn *badger.Txn) error {
		user, err := getUser(txn, id)
		if err != nil {
			return err
		}
		user.Status = status
		data, err := json.Marshal(fromUser(user))
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		return txn.Set(userIDKey(id), data)
	})
}

func getUser(txn *badger.Txn, id string) (domain.User, error) {
	item, err := txn.Get(userIDKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return domain.User{}, errors.ErrUserNotFound
		}
		return domain.User{}, err
	}
	var du diskUser
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &du)
	}); err != nil {
		return domain.User{}, err
	}
	return toUser(du), nil
}

func fromUser(user domain.User) diskUser {
	return diskUser{
		ID:           user.ID,
		Nickname:     user.Nickname,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		Status:       user.Status,
		Banned:       user.Banned,
		BanReason:    user.BanReason,
		BanExpires:   user.BanExpires,
		MuteExpires:  user.MuteExpires,
		CreatedAt:    user.CreatedAt,
	}
}

func toUser(du diskUser) domain.User {
	return domain.User{
		ID:           du.ID,
		Nickname:     du.Nickname,
		PasswordHash: du.PasswordHash,
		Role:         du.Role,
		Status:       du.Status,
		Banned:       du.Banned,
		BanReason:    du.BanReason,
		BanExpires:   du.BanExpires,
		MuteExpires:  du.MuteExpires,
		CreatedAt:    du.CreatedAt,
	}
}
