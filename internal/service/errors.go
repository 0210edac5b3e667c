package service

import "errors"

// カスタムエラー定義
// ハンドラー側でHTTPステータス／errorイベントに対応付けます
var (
	// 認証
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnknownUser        = errors.New("invalid token - user not found")

	// 認可
	ErrNotAMember     = errors.New("access denied - not a member of this room")
	ErrSenderMismatch = errors.New("cannot send message as different user")

	// 衝突
	ErrEmailTaken        = errors.New("email already registered")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrDuplicateRoomName = errors.New("room name already exists")

	// 未検出
	ErrUserNotFound = errors.New("user not found")
	ErrRoomNotFound = errors.New("chat room not found")

	// バリデーション
	ErrEmptyContent       = errors.New("message content is required")
	ErrContentTooLong     = errors.New("message cannot exceed 1000 characters")
	ErrRoomNameRequired   = errors.New("room name is required")
	ErrRoomNameTooLong    = errors.New("room name cannot exceed 50 characters")
	ErrDescriptionTooLong = errors.New("description cannot exceed 200 characters")
)

// IsValidationError はバリデーション系のエラーかを判定します
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrContentTooLong),
		errors.Is(err, ErrRoomNameRequired),
		errors.Is(err, ErrRoomNameTooLong),
		errors.Is(err, ErrDescriptionTooLong):
		return true
	}
	return false
}
