//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	goerrors "errors"
	"fmt"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(username, email, hashedPassword string) (domain.UserID, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUserByID(id domain.UserID) (domain.User, error)
}

// UserRepository stores users in BadgerDB. Keys:
//
//	user:email:{email} -> user record
//	user:name:{name}   -> email, uniqueness guard for usernames
//	user:id:{id}       -> email, lookup index for display names
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

type userRecord struct {
	ID           string   `cbor:"id"`
	Username     string   `cbor:"username"`
	Email        string   `cbor:"email"`
	PasswordHash string   `cbor:"password_hash"`
	Roles        []string `cbor:"roles"`
	CreatedAt    int64    `cbor:"created_at"`
}

// CreateUser persists the user and its two index rows in one transaction.
// It returns the newly generated user ID, or ErrUserAlreadyExists when the
// email or username is taken.
func (u UserRepository) CreateUser(username, email, hashedPassword string) (domain.UserID, error) {
	newID := uuid.NewString()
	rec := userRecord{
		ID:           newID,
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().Unix(),
	}

	data, err := cbor.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte("user:email:" + email)
		nameKey := []byte("user:name:" + username)
		if _, err := txn.Get(emailKey); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if _, err := txn.Get(nameKey); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(emailKey, data); err != nil {
			return err
		}
		if err := txn.Set(nameKey, []byte(email)); err != nil {
			return err
		}
		return txn.Set([]byte("user:id:"+newID), []byte(email))
	})
	if err != nil {
		return "", err
	}

	return domain.UserID(newID), nil
}

func (u UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var rec userRecord

	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:email:" + email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &rec)
		})
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}

	return toUser(rec), nil
}

func (u UserRepository) GetUserByID(id domain.UserID) (domain.User, error) {
	var email []byte
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:id:" + string(id)))
		if err != nil {
			return err
		}
		email, err = item.ValueCopy(nil)
		return err
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	return u.GetUserByEmail(string(email))
}

func toUser(rec userRecord) domain.User {
	return domain.User{
		ID:           domain.UserID(rec.ID),
		Username:     rec.Username,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Roles:        rec.Roles,
		CreatedAt:    time.Unix(rec.CreatedAt, 0).UTC(),
	}
}
