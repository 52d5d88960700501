package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusplan/timetable-api/internal/models"
)

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "username", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"})
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("student@campus.test").
		WillReturnRows(userRows().AddRow("user-1", "student@campus.test", "student1", "hash", "Test Student", "STUDENT", true, nil, now, now))

	user, err := repo.FindByEmail(context.Background(), "student@campus.test")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByEmailNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("ghost@campus.test").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@campus.test")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByUsername(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1 LIMIT 1")).
		WithArgs("student1").
		WillReturnRows(userRows().AddRow("user-1", "student@campus.test", "student1", "hash", "Test Student", "STUDENT", true, nil, now, now))

	user, err := repo.FindByUsername(context.Background(), "student1")
	require.NoError(t, err)
	assert.Equal(t, "student@campus.test", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "opaque-value",
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindRefreshToken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow("rt-1", "user-1", "opaque-value", now.Add(24*time.Hour), now, false, nil, "", "")

	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token = $1 LIMIT 1")).
		WithArgs("opaque-value").
		WillReturnRows(rows)

	stored, err := repo.FindRefreshToken(context.Background(), "opaque-value")
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.False(t, stored.Revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRevokeUserRefreshTokens(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE")).
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.RevokeUserRefreshTokens(context.Background(), "user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
