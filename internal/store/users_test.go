package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	s, mock := newStoreFixture(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("Dana@Example.com", "$2a$12$hash").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "email", "password_hash", "created_at"}).
			AddRow(int64(1), "dana@example.com", "$2a$12$hash", now))

	u, err := s.CreateUser(context.Background(), "Dana@Example.com", "$2a$12$hash")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.UserID)
	assert.Equal(t, "dana@example.com", u.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s, mock := newStoreFixture(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("dana@example.com", "$2a$12$hash").
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "users_email_key" (SQLSTATE 23505)`))

	u, err := s.CreateUser(context.Background(), "dana@example.com", "$2a$12$hash")
	assert.Nil(t, u)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail(t *testing.T) {
	s, mock := newStoreFixture(t)

	now := time.Now()
	mock.ExpectQuery("SELECT user_id, email, password_hash, created_at").
		WithArgs("dana@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "email", "password_hash", "created_at"}).
			AddRow(int64(1), "dana@example.com", "$2a$12$hash", now))

	u, err := s.GetUserByEmail(context.Background(), "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmailNotFound(t *testing.T) {
	s, mock := newStoreFixture(t)

	mock.ExpectQuery("SELECT user_id, email, password_hash, created_at").
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	u, err := s.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.Nil(t, u)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByIDNotFound(t *testing.T) {
	s, mock := newStoreFixture(t)

	mock.ExpectQuery("SELECT user_id, email, password_hash, created_at").
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	u, err := s.GetUserByID(context.Background(), 42)
	assert.Nil(t, u)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
