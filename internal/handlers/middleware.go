package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/realtime-chat/api-server/internal/auth"
	"github.com/realtime-chat/api-server/internal/models"
	"github.com/realtime-chat/api-server/internal/service"
)

type contextKey string

// userContextKey は認証済みユーザーをリクエストコンテキストに持たせるキー
const userContextKey contextKey = "authenticatedUser"

// Authenticate はBearerトークンを検証するミドルウェアです
// 検証に成功した場合、ユーザーをリクエストコンテキストに格納します
// 失敗した場合は401を返し、ハンドラーは実行されません
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			user, err := authSvc.VerifyToken(r.Context(), token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, authErrorMessage(err))
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUser はコンテキストから認証済みユーザーを取り出します
func currentUser(r *http.Request) (models.User, bool) {
	u, ok := r.Context().Value(userContextKey).(models.User)
	return u, ok
}

// bearerToken はAuthorizationヘッダーからトークンを取り出します
// "Bearer <token>" 形式以外は空文字を返します
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authErrorMessage は認証エラーをユーザー向けメッセージに対応付けます
func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "Access token required"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, service.ErrUnknownUser):
		return "Invalid token - user not found"
	default:
		return "Invalid token"
	}
}
