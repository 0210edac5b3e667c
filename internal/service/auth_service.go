// Package service はビジネスロジックを担当します
// アカウント管理・ルーム管理・メッセージの永続化とブロードキャストを提供します
package service

import (
	"context"
	"errors"
	"time"

	"github.com/realtime-chat/api-server/internal/auth"
	"github.com/realtime-chat/api-server/internal/idgen"
	"github.com/realtime-chat/api-server/internal/models"
	"github.com/realtime-chat/api-server/internal/repo"
)

// AuthService はアカウント管理と資格情報の検証を提供します
type AuthService struct {
	users    repo.UserRepo
	rooms    repo.RoomRepo
	messages repo.MessageRepo
	tokens   *auth.TokenManager
	hasher   *auth.PasswordHasher
}

// NewAuthService は新しいAuthServiceを作成します
func NewAuthService(users repo.UserRepo, rooms repo.RoomRepo, messages repo.MessageRepo, tokens *auth.TokenManager, hasher *auth.PasswordHasher) *AuthService {
	return &AuthService{users: users, rooms: rooms, messages: messages, tokens: tokens, hasher: hasher}
}

// Register は新しいユーザーを登録してトークンを発行します
// username / email が使用済みの場合はエラーを返します
func (s *AuthService) Register(ctx context.Context, username, email, password string) (models.User, string, error) {
	existing, found, err := s.users.FindTaken(ctx, "", username, email)
	if err != nil {
		return models.User{}, "", err
	}
	if found {
		if existing.Email == email {
			return models.User{}, "", ErrEmailTaken
		}
		return models.User{}, "", ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, "", err
	}

	user := models.User{
		UserId:       idgen.NewUUID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return models.User{}, "", err
	}

	token, err := s.tokens.Generate(user.UserId)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

// Login はメールアドレスとパスワードを検証してトークンを発行します
// ユーザー不在とパスワード不一致は区別しません
func (s *AuthService) Login(ctx context.Context, email, password string) (models.User, string, error) {
	user, found, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, "", err
	}
	if !found || !s.hasher.Verify(password, user.PasswordHash) {
		return models.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.UserId)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

// VerifyToken はトークンを検証してユーザーを解決します
// トークンは有効だがユーザーが削除済みの場合はErrUnknownUserを返します
func (s *AuthService) VerifyToken(ctx context.Context, token string) (models.User, error) {
	userId, err := s.tokens.Parse(token)
	if err != nil {
		return models.User{}, err
	}
	user, found, err := s.users.GetUser(ctx, userId)
	if err != nil {
		return models.User{}, err
	}
	if !found {
		return models.User{}, ErrUnknownUser
	}
	return user, nil
}

// UpdateProfile はユーザー名とメールアドレスを更新します
func (s *AuthService) UpdateProfile(ctx context.Context, userId, username, email string) (models.User, error) {
	existing, found, err := s.users.FindTaken(ctx, userId, username, email)
	if err != nil {
		return models.User{}, err
	}
	if found {
		if existing.Email == email {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, ErrUsernameTaken
	}

	if err := s.users.UpdateUser(ctx, models.User{UserId: userId, Username: username, Email: email}); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	user, _, err := s.users.GetUser(ctx, userId)
	return user, err
}

// DeleteAccount はパスワードを再確認した上でアカウントを削除します
// 全ルームのメンバーシップから除名し、deleteChats指定時は
// 退出済みのルームも含む全ルームから送信済みメッセージを削除します
// （未指定ならメッセージ履歴は残る）
func (s *AuthService) DeleteAccount(ctx context.Context, userId, password string, deleteChats bool) error {
	user, found, err := s.users.GetUser(ctx, userId)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	if _, err := s.rooms.RemoveMemberEverywhere(ctx, userId); err != nil {
		return err
	}
	if deleteChats {
		// メッセージは退出後もルームに残るため、現在の所属に関係なく
		// 全ルームを対象に削除する
		rooms, err := s.rooms.ListRooms(ctx)
		if err != nil {
			return err
		}
		for _, room := range rooms {
			if err := s.messages.PurgeSender(ctx, room.RoomId, userId); err != nil {
				return err
			}
		}
	}

	return s.users.DeleteUser(ctx, userId)
}
