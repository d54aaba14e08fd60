package repositories

import (
	"testing"

	"chat-relay/errors"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateUser(t *testing.T) {
	t.Run("should create and fetch back by email and id", func(t *testing.T) {
		req := require.New(t)
		repo := NewUserRepository(newTestDB(t))

		id, err := repo.CreateUser("alice", "alice@example.com", "hashed")
		req.NoError(err)
		req.NotEmpty(id)

		byEmail, err := repo.GetUserByEmail("alice@example.com")
		req.NoError(err)
		req.Equal(id, byEmail.ID)
		req.Equal("alice", byEmail.Username)
		req.Equal("hashed", byEmail.PasswordHash)
		req.Equal([]string{"user"}, byEmail.Roles)

		byID, err := repo.GetUserByID(id)
		req.NoError(err)
		req.Equal(byEmail, byID)
	})

	t.Run("should reject a duplicate email", func(t *testing.T) {
		req := require.New(t)
		repo := NewUserRepository(newTestDB(t))

		_, err := repo.CreateUser("alice", "alice@example.com", "hashed")
		req.NoError(err)

		_, err = repo.CreateUser("alice2", "alice@example.com", "hashed")
		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})

	t.Run("should reject a duplicate username", func(t *testing.T) {
		req := require.New(t)
		repo := NewUserRepository(newTestDB(t))

		_, err := repo.CreateUser("alice", "alice@example.com", "hashed")
		req.NoError(err)

		_, err = repo.CreateUser("alice", "other@example.com", "hashed")
		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestUserRepository_Lookups(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))

	// Lookups never reveal whether the account exists.
	_, err := repo.GetUserByEmail("ghost@example.com")
	req.ErrorIs(err, errors.ErrInvalidCredentials)

	_, err = repo.GetUserByID("no-such-id")
	req.ErrorIs(err, errors.ErrInvalidCredentials)
}
