package auth

import (
	"testing"
	"time"

	"bookswap/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWT() *config.JWTConfig {
	return &config.JWTConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
		Issuer:        "bookswap",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWT()
	tok, err := GenerateAccessToken(cfg, 42, "MEMBER")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "MEMBER", claims.Role)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	cfg := testJWT()
	refresh, err := GenerateRefreshToken(cfg, 42)
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	id, err := ParseRefreshToken(cfg, refresh)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	cfg := testJWT()
	cfg.AccessExpiry = -time.Minute
	tok, err := GenerateAccessToken(cfg, 1, "MEMBER")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
