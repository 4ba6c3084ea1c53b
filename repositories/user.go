//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"fmt"
	"time"

	"parley/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, displayName, hashedPassword string) (string, error)
	GetUserByEmail(email string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the domain-friendly representation of a user in the repository layer.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

type diskUser struct {
	ID           string   `cbor:"id"`
	Email        string   `cbor:"email"`
	DisplayName  string   `cbor:"display_name"`
	PasswordHash string   `cbor:"password_hash"`
	Roles        []string `cbor:"roles"`
	CreatedAt    int64    `cbor:"created_at"`
}

// CreateUser persists the user in BadgerDB, keyed by email so uniqueness
// is enforced by the store itself. It returns the newly generated user ID.
func (u UserRepository) CreateUser(email, displayName, hashedPassword string) (string, error) {
	newID := uuid.New().String()
	data, err := cbor.Marshal(diskUser{
		ID:           newID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := []byte("user:" + email)
		if _, err = txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})

	return newID, err
}

// GetUserByEmail retrieves a user from Badger and converts it to the repository.User struct.
func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var disk diskUser

	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + email))
		if err != nil {
			return err // Will be handled as ErrInvalidCredentials or ErrNotFound
		}

		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &disk)
		})
	})

	if err == badger.ErrKeyNotFound {
		return User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	return User{
		ID:           disk.ID,
		Email:        disk.Email,
		DisplayName:  disk.DisplayName,
		PasswordHash: disk.PasswordHash,
		Roles:        disk.Roles,
		CreatedAt:    time.Unix(disk.CreatedAt, 0).UTC(),
	}, nil
}
