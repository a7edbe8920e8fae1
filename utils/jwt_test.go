package utils_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vparking/utils"
)

func TestGenerateAndParseToken(t *testing.T) {
	utils.InitJWTSecret("test-secret")

	token, err := utils.GenerateToken(42, "admin", time.Hour)
	require.NoError(t, err)

	claims, err := utils.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestParseTokenExpired(t *testing.T) {
	utils.InitJWTSecret("test-secret")

	token, err := utils.GenerateToken(1, "user", -time.Minute)
	require.NoError(t, err)

	_, err = utils.ParseToken(token)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestParseTokenWrongSecret(t *testing.T) {
	utils.InitJWTSecret("secret-a")
	token, err := utils.GenerateToken(1, "user", time.Hour)
	require.NoError(t, err)

	utils.InitJWTSecret("secret-b")
	_, err = utils.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenMissingClaims(t *testing.T) {
	utils.InitJWTSecret("test-secret")
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := raw.SignedString(utils.JWTSecret)
	require.NoError(t, err)

	_, err = utils.ParseToken(signed)
	assert.ErrorIs(t, err, utils.ErrInvalidClaims)
}

func TestPasswordHash(t *testing.T) {
	hash, err := utils.HashPassword("s3cret")
	require.NoError(t, err)

	assert.True(t, utils.CheckPasswordHash("s3cret", hash))
	assert.False(t, utils.CheckPasswordHash("wrong", hash))
}
