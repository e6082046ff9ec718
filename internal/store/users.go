package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateUser inserts a user row. Emails are stored lowercase so lookups are
// case-normalized by construction.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	query := `
		INSERT INTO users (email, password_hash)
		VALUES (lower($1), $2)
		RETURNING user_id, email, password_hash, created_at`

	var u User
	err := s.db.QueryRow(ctx, query, email, passwordHash).
		Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", email, ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail looks up a user case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT user_id, email, password_hash, created_at
		FROM users
		WHERE email = lower($1)`

	var u User
	err := s.db.QueryRow(ctx, query, email).
		Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return &u, nil
}

// GetUserByID looks up a user by id.
func (s *Store) GetUserByID(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT user_id, email, password_hash, created_at
		FROM users
		WHERE user_id = $1`

	var u User
	err := s.db.QueryRow(ctx, query, userID).
		Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return &u, nil
}
