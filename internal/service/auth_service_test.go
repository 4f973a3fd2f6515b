package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bookswap/config"
	"bookswap/internal/auth"
	"bookswap/internal/domain"
	"bookswap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	byID   map[uint]*models.User
	nextID uint
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: make(map[uint]*models.User)}
}

func (f *fakeAccounts) Create(ctx context.Context, u *models.User) error {
	f.nextID++
	u.ID = f.nextID
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
}

func (f *fakeAccounts) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

func (f *fakeAccounts) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
}

func (f *fakeAccounts) UpdatePassword(ctx context.Context, id uint, hash string) error {
	f.byID[id].PasswordHash = hash
	return nil
}

func newAuthService() (*AuthService, *config.JWTConfig) {
	cfg := &config.JWTConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
		Issuer:        "bookswap",
	}
	return NewAuthService(cfg, newFakeAccounts()), cfg
}

func TestRegisterAndLogin(t *testing.T) {
	svc, cfg := newAuthService()
	ctx := context.Background()

	u, tokens, err := svc.Register(ctx, " Reader@Example.com ", "reader", "correct horse", "Nairobi")
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", u.Email)
	assert.Equal(t, domain.RoleMember, u.Role)
	assert.Zero(t, u.Points)

	claims, err := auth.ParseAccessToken(cfg, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, _, err = svc.Register(ctx, "reader@example.com", "other", "correct horse", "")
	assert.ErrorIs(t, err, ErrEmailExists)
	_, _, err = svc.Register(ctx, "other@example.com", "reader", "correct horse", "")
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, _, err = svc.Login(ctx, "reader@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCreds)
	_, _, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCreds)

	_, again, err := svc.Login(ctx, "READER@example.com", "correct horse")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, again.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.Refresh(ctx, again.AccessToken)
	assert.Error(t, err)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService()
	cases := []struct{ email, username, password string }{
		{"not-an-email", "u", "long enough"},
		{"a@b.co", "", "long enough"},
		{"a@b.co", "u", "short"},
	}
	for _, tc := range cases {
		_, _, err := svc.Register(context.Background(), tc.email, tc.username, tc.password, "")
		assert.ErrorIs(t, err, domain.ErrValidation, tc)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()
	u, _, err := svc.Register(ctx, "a@b.co", "a", "first password", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "nope", "second password"), ErrInvalidCreds)
	require.NoError(t, svc.ChangePassword(ctx, u.ID, "first password", "second password"))

	_, _, err = svc.Login(ctx, "a@b.co", "second password")
	assert.NoError(t, err)
}
