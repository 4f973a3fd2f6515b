package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"bookswap/config"
	"bookswap/internal/auth"
	"bookswap/internal/domain"
	"bookswap/internal/models"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists    = errors.New("email already registered")
	ErrUsernameExists = errors.New("username already taken")
	ErrInvalidCreds   = errors.New("invalid email or password")
)

const minPasswordLen = 8

type AccountStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, id uint, hash string) error
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService struct {
	cfg   *config.JWTConfig
	users AccountStore
}

func NewAuthService(cfg *config.JWTConfig, users AccountStore) *AuthService {
	return &AuthService{cfg: cfg, users: users}
}

// Register creates a member with a zero balance and signs them in.
func (s *AuthService) Register(ctx context.Context, email, username, password, city string) (*models.User, Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, Tokens{}, domain.Invalid("email", "not a valid address")
	}
	if username == "" || len(username) > 64 {
		return nil, Tokens{}, domain.Invalid("username", "must be 1 to 64 characters")
	}
	if len(password) < minPasswordLen {
		return nil, Tokens{}, domain.Invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, Tokens{}, ErrEmailExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, Tokens{}, err
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, Tokens{}, ErrUsernameExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, Tokens{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, Tokens{}, err
	}
	u := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         domain.RoleMember,
		City:         strings.TrimSpace(city),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, Tokens{}, ErrEmailExists
		}
		return nil, Tokens{}, err
	}
	tokens, err := s.issue(u)
	return u, tokens, err
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, Tokens, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, Tokens{}, ErrInvalidCreds
		}
		return nil, Tokens{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, Tokens{}, ErrInvalidCreds
	}
	tokens, err := s.issue(u)
	return u, tokens, err
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	userID, err := auth.ParseRefreshToken(s.cfg, refreshToken)
	if err != nil {
		return Tokens{}, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Tokens{}, auth.ErrInvalidToken
		}
		return Tokens{}, err
	}
	return s.issue(u)
}

// ChangePassword requires the current password.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCreds
	}
	if len(next) < minPasswordLen {
		return domain.Invalid("new_password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, string(hash))
}

func (s *AuthService) issue(u *models.User) (Tokens, error) {
	access, err := auth.GenerateAccessToken(s.cfg, u.ID, u.Role)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := auth.GenerateRefreshToken(s.cfg, u.ID)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}
