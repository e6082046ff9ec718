package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/zolsal/price-service/internal/store"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

var (
	// ErrWeakPassword rejects passwords below the minimum length.
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	// ErrInvalidCredentials covers both unknown emails and wrong passwords,
	// indistinguishably.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// UserStore is the slice of the store the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
}

// Service owns user registration and login.
type Service struct {
	users  UserStore
	tokens *JWTManager
	logger zerolog.Logger
}

// NewService creates an auth service over the given user store.
func NewService(users UserStore, tokens *JWTManager) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		logger: log.With().Str("component", "auth").Logger(),
	}
}

// Register creates a user account and returns it with a fresh token.
// A duplicate email surfaces as store.ErrDuplicate.
func (s *Service) Register(ctx context.Context, email, password string) (*store.User, string, error) {
	if len(password) < minPasswordLength {
		return nil, "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, email, string(hash))
	if err != nil {
		return nil, "", err
	}

	token, err := s.tokens.GenerateToken(user.UserID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	s.logger.Info().Int64("user_id", user.UserID).Str("email", user.Email).Msg("user registered")
	return user, token, nil
}

// Login authenticates a user and returns it with a fresh token. Unknown
// emails and wrong passwords both come back as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.UserID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	s.logger.Info().Int64("user_id", user.UserID).Msg("user logged in")
	return user, token, nil
}
