package utils

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecret 由 InitJWTSecret 在啟動時設定
var JWTSecret []byte

var ErrInvalidClaims = errors.New("invalid token claims")

func InitJWTSecret(secret string) {
	if secret == "" {
		log.Fatal("JWT secret must not be empty")
	}
	JWTSecret = []byte(secret)
}

// Claims 從 token 取出的使用者資訊
type Claims struct {
	UserID int
	Role   string
}

// GenerateToken 簽發 HS256 token，必定帶 exp
func GenerateToken(userID int, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(JWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken 驗證簽章與到期時間；過期時 errors.Is(err, jwt.ErrTokenExpired)
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return JWTSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidClaims)
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrInvalidClaims)
	}
	return &Claims{UserID: int(userID), Role: role}, nil
}
