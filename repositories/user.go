package repositories

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"chat-gateway/domain"
	"chat-gateway/errors"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(username, email, hashedPassword string) (domain.User, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id int64) (domain.User, error)
}

// User is the storage-facing representation, carrying the password hash
// that never leaves the repository and service layers.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"` // Unix seconds
}

func (u User) Domain() domain.User {
	return domain.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: time.Unix(u.CreatedAt, 0).UTC(),
	}
}

type UserRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewUserRepository opens the user keyspace and the Badger sequence
// that allocates monotonically increasing user IDs.
// Close must be called to release unconsumed sequence leases.
func NewUserRepository(db *badger.DB) (*UserRepository, error) {
	seq, err := db.GetSequence([]byte("seq:user"), 64)
	if err != nil {
		return nil, fmt.Errorf("user id sequence: %w", err)
	}
	return &UserRepository{db: db, seq: seq}, nil
}

func (u *UserRepository) Close() error {
	return u.seq.Release()
}

// CreateUser persists a new user under two keys: "user:id:{id}" holding
// the record, and "user:email:{email}" holding the id for login lookups.
// The email key doubles as the uniqueness guard.
func (u *UserRepository) CreateUser(username, email, hashedPassword string) (domain.User, error) {
	next, err := u.seq.Next()
	if err != nil {
		return domain.User{}, err
	}
	// Sequences start at zero; user IDs start at one.
	newID := int64(next) + 1

	stored := User{
		ID:           newID,
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().Unix(),
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return domain.User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte("user:email:" + email)
		if _, err := txn.Get(emailKey); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(emailKey, []byte(strconv.FormatInt(newID, 10))); err != nil {
			return err
		}
		return txn.Set(idKey(newID), data)
	})
	if err != nil {
		return domain.User{}, err
	}

	return stored.Domain(), nil
}

// GetUserByEmail resolves the email index then loads the full record.
func (u *UserRepository) GetUserByEmail(email string) (User, error) {
	var stored User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:email:" + email))
		if err != nil {
			return err
		}
		var id int64
		err = item.Value(func(val []byte) error {
			id, err = strconv.ParseInt(string(val), 10, 64)
			return err
		})
		if err != nil {
			return err
		}

		record, err := txn.Get(idKey(id))
		if err != nil {
			return err
		}
		return record.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		return User{}, err
	}
	return stored, nil
}

func (u *UserRepository) GetUserByID(id int64) (domain.User, error) {
	var stored User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return stored.Domain(), nil
}

func idKey(id int64) []byte {
	return []byte("user:id:" + strconv.FormatInt(id, 10))
}
