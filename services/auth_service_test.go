package services

import (
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestTokens() *auth.TokenManager {
	return auth.NewTokenManager("test-secret-do-not-use", 24*time.Hour)
}

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, newTestTokens())

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "ComplexPassword123!"

		// Expect CreateUser to be called with a hashed password (not the plain one)
		mockRepo.EXPECT().
			CreateUser("tester", email, gomock.Not(password)).
			Return(domain.UserID("user-uuid"), nil).
			Times(1)

		token, err := svc.Register("tester", email, password)

		req.NoError(err)
		req.NotEmpty(token)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		// Repository should NEVER be called
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		token, err := svc.Register("tester", "test@example.com", "simple-but-long")

		req.Error(err)
		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(token)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateUser("tester", "duplicate@example.com", gomock.Any()).
			Return(domain.UserID(""), errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register("tester", "duplicate@example.com", "ComplexPassword123!")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockIUserRepository(ctrl)
	tokens := newTestTokens()
	svc := NewAuthService(mockRepo, tokens)

	password := "ComplexPassword123!"
	hashed, err := auth.HashPassword(password)
	require.NoError(t, err)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("user@example.com").
			Return(domain.User{
				ID:           "user-uuid",
				Username:     "tester",
				Email:        "user@example.com",
				PasswordHash: hashed,
				Roles:        []string{"user"},
			}, nil)

		token, err := svc.Login("user@example.com", password)

		req.NoError(err)
		claims, err := tokens.Validate(string(token))
		req.NoError(err)
		req.Equal("user-uuid", claims.UserID)
	})

	t.Run("should fail with a wrong password", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("user@example.com").
			Return(domain.User{ID: "user-uuid", PasswordHash: hashed}, nil)

		_, err := svc.Login("user@example.com", "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should fail for an unknown account", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("ghost@example.com").
			Return(domain.User{}, errors.ErrInvalidCredentials)

		_, err := svc.Login("ghost@example.com", password)

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should fail fast on a malformed email", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().GetUserByEmail(gomock.Any()).Times(0)

		_, err := svc.Login("not-an-email", password)

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}
