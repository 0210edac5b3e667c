package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/realtime-chat/api-server/internal/models"
	"github.com/realtime-chat/api-server/internal/service"
)

// AuthHandler はアカウント関連のHTTPエンドポイントを処理します
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler は新しいAuthHandlerを作成します
func NewAuthHandler(s *service.AuthService) *AuthHandler { return &AuthHandler{svc: s} }

// userResponse はAPIレスポンスに含めるユーザー情報
// パスワードハッシュは含めません
type userResponse struct {
	Id        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{Id: u.UserId, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type deleteAccountRequest struct {
	Password    string `json:"password"`
	DeleteChats bool   `json:"deleteChats"`
}

// Register は新しいユーザーを登録します
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateRequired(map[string]string{
		"username": in.Username,
		"email":    in.Email,
		"password": in.Password,
	}); err != nil {
		respondError(w, http.StatusBadRequest, "Username, email, and password are required")
		return
	}

	user, token, err := h.svc.Register(r.Context(), normalizeID(in.Username), normalizeID(in.Email), in.Password)
	if err != nil {
		log.Printf("Registration error: %v", err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    toUserResponse(user),
		"token":   token,
	})
}

// Login はメールアドレスとパスワードで認証してトークンを発行します
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	user, token, err := h.svc.Login(r.Context(), normalizeID(in.Email), in.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Printf("Login error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    toUserResponse(user),
		"token":   token,
	})
}

// Verify はミドルウェアで検証済みのトークンに対応するユーザーを返します
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Token valid",
		"user":    toUserResponse(user),
	})
}

// UpdateProfile はユーザー名とメールアドレスを更新します
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	var in profileRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := validateRequired(map[string]string{"username": in.Username, "email": in.Email}); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.svc.UpdateProfile(r.Context(), user.UserId, normalizeID(in.Username), normalizeID(in.Email))
	if err != nil {
		log.Printf("Profile update error (userId=%s): %v", user.UserId, err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    toUserResponse(updated),
	})
}

// DeleteAccount はパスワード再確認の上でアカウントを削除します
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	var in deleteAccountRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	if err := h.svc.DeleteAccount(r.Context(), user.UserId, in.Password, in.DeleteChats); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid password")
			return
		}
		log.Printf("Account deletion error (userId=%s): %v", user.UserId, err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Account deleted successfully"})
}

func (h *AuthHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case service.IsValidationError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
