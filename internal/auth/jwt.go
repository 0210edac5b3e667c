// Package auth はトークンの発行・検証とパスワードのハッシュ化を提供します
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// トークン検証のエラー
var (
	ErrMissingToken = errors.New("access token required")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims はトークンに埋め込むクレームです
// UserId のみを保持し、表示名などは毎回DBから解決します
type Claims struct {
	UserId string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenManager はトークンの発行と検証を行います
// 固定の秘密鍵に対してステートレスに動作します
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager は新しいTokenManagerを作成します
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Generate は指定されたユーザーIDのトークンを発行します
func (m *TokenManager) Generate(userId string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId: userId,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse はトークンを検証してユーザーIDを返します
// 空文字はErrMissingToken、期限切れはErrExpiredToken、
// それ以外の検証失敗はErrInvalidTokenを返します
func (m *TokenManager) Parse(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserId == "" {
		return "", ErrInvalidToken
	}
	return claims.UserId, nil
}
