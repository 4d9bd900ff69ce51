package services

import (
	"fmt"
	"time"

	"chat-gateway/auth"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/repositories"
)

type IAuthService interface {
	Login(email, password string) (Token, domain.User, error)
	Register(username, email, password string) (Token, domain.User, error)
}

type Token string

type AuthService struct {
	userRepository repositories.IUserRepository
	secret         []byte
	tokenDuration  time.Duration
}

func NewAuthService(repo repositories.IUserRepository, secret []byte,
	tokenDuration time.Duration) IAuthService {
	return &AuthService{
		userRepository: repo,
		secret:         secret,
		tokenDuration:  tokenDuration,
	}
}

func (s *AuthService) Register(username, email, password string) (Token, domain.User, error) {
	valReq := auth.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	}

	// 1. Validate business rules (email format, password complexity)
	// before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", domain.User{}, fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// 2. Hash the password using Argon2id. Done here so the repository
	// never sees a plain password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash.
	user, err := s.userRepository.CreateUser(username, email, hashedPassword)
	if err != nil {
		return "", domain.User{}, err // propagates ErrUserAlreadyExists when the email is taken
	}

	// 4. Generate the initial session token.
	token, err := auth.GenerateToken(s.secret, user.ID, user.Username, s.tokenDuration)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}

	return Token(token), user, nil
}

func (s *AuthService) Login(email, password string) (Token, domain.User, error) {
	// 1. Retrieve the user by email.
	stored, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks.
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash.
	match, err := auth.ComparePassword(password, stored.PasswordHash)
	if err != nil || !match {
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	// 3. Issue the JWT.
	token, err := auth.GenerateToken(s.secret, stored.ID, stored.Username, s.tokenDuration)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}

	return Token(token), stored.Domain(), nil
}
