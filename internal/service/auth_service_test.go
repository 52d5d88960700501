package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusplan/timetable-api/internal/models"
)

type authRepoMock struct {
	byEmail    map[string]*models.User
	byUsername map[string]*models.User
	tokens     map[string]*models.RefreshToken
	revoked    []string
}

func (m *authRepoMock) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *authRepoMock) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if user, ok := m.byUsername[username]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *authRepoMock) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range m.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *authRepoMock) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *authRepoMock) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func (m *authRepoMock) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.tokens == nil {
		m.tokens = make(map[string]*models.RefreshToken)
	}
	m.tokens[token.Token] = token
	return nil
}

func (m *authRepoMock) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := m.tokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (m *authRepoMock) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.tokens {
		if token.ID == id {
			token.Revoked = true
		}
	}
	return nil
}

func testUser(t *testing.T) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "student@campus.test",
		Username:     "student1",
		PasswordHash: string(hash),
		FullName:     "Test Student",
		Role:         models.RoleStudent,
		Active:       true,
	}
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "campus-timetable",
	}
}

func TestAuthLoginByEmail(t *testing.T) {
	user := testUser(t)
	repo := &authRepoMock{byEmail: map[string]*models.User{user.Email: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Login: user.Email, Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, user.ID, res.User.ID)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthLoginByUsername(t *testing.T) {
	user := testUser(t)
	repo := &authRepoMock{byUsername: map[string]*models.User{user.Username: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Login: user.Username, Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	user := testUser(t)
	repo := &authRepoMock{byEmail: map[string]*models.User{user.Email: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Login: user.Email, Password: "wrong"})
	assert.Error(t, err)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	user := testUser(t)
	user.Active = false
	repo := &authRepoMock{byEmail: map[string]*models.User{user.Email: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Login: user.Email, Password: "secret123"})
	assert.Error(t, err)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	user := testUser(t)
	repo := &authRepoMock{byEmail: map[string]*models.User{user.Email: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Login: user.Email, Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The consumed token no longer works.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.Error(t, err)
}

func TestAuthRefreshExpiredToken(t *testing.T) {
	user := testUser(t)
	repo := &authRepoMock{
		byEmail: map[string]*models.User{user.Email: user},
		tokens: map[string]*models.RefreshToken{
			"stale": {ID: "rt-1", UserID: user.ID, Token: "stale", ExpiresAt: time.Now().Add(-time.Hour)},
		},
	}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	assert.Error(t, err)
}

func TestAuthSingleSessionRevokesPrevious(t *testing.T) {
	user := testUser(t)
	repo := &authRepoMock{byEmail: map[string]*models.User{user.Email: user}}
	cfg := testAuthConfig()
	cfg.SingleSession = true
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), cfg)

	_, err := svc.Login(context.Background(), models.LoginRequest{Login: user.Email, Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID}, repo.revoked)
}
