package services

import (
	"fmt"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IAuthService interface {
	Register(username, email, password string) (Token, error)
	Login(email, password string) (Token, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenManager
}

type Token string

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenManager) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(username, email, password string) (Token, error) {
	valReq := auth.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	}

	// Validate business rules (email format, password complexity) before
	// any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hash in the service layer so the repository never sees a plain
	// password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(username, email, hashedPassword)
	if err != nil {
		return "", err // Propagates ErrUserAlreadyExists when taken.
	}

	token, err := s.tokens.Generate(userID, []string{"user"})
	if err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Email: email, Password: password}); err != nil {
		return "", errors.ErrInvalidCredentials
	}

	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		return "", err
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("comparing password: %w", err)
	}
	if !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Roles)
	if err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	return Token(token), nil
}
