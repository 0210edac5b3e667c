package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/realtime-chat/api-server/internal/idgen"
	"github.com/realtime-chat/api-server/internal/models"
	"github.com/realtime-chat/api-server/internal/repo"
)

// RoomService はルームと永続メンバーシップのビジネスロジックを提供します
type RoomService struct {
	repo repo.RoomRepo
}

// NewRoomService は新しいRoomServiceを作成します
func NewRoomService(r repo.RoomRepo) *RoomService {
	return &RoomService{repo: r}
}

// Create は新しいルームを作成し、作成者を最初のメンバーとして追加します
// ルーム名はトリム後にユニークである必要があります
func (s *RoomService) Create(ctx context.Context, name, description, creatorId string) (models.Room, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return models.Room{}, ErrRoomNameRequired
	}
	if utf8.RuneCountInString(name) > models.MaxRoomNameLen {
		return models.Room{}, ErrRoomNameTooLong
	}
	if utf8.RuneCountInString(description) > models.MaxDescriptionLen {
		return models.Room{}, ErrDescriptionTooLong
	}

	room := models.Room{
		RoomId:      idgen.NewUUID(),
		Name:        name,
		Description: description,
		CreatedBy:   creatorId,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, repo.ErrDuplicateRoomName) {
			return models.Room{}, ErrDuplicateRoomName
		}
		return models.Room{}, err
	}
	// 作成者は自動的にメンバーになる
	// メンバー追加に失敗した場合は空ルームを残さずロールバックする
	if err := s.repo.AddMember(ctx, room.RoomId, creatorId); err != nil {
		if delErr := s.repo.DeleteRoom(ctx, room.RoomId); delErr != nil {
			return models.Room{}, errors.Join(err, delErr)
		}
		return models.Room{}, err
	}
	room.Members = []string{creatorId}
	return room, nil
}

// List は全ルームを新しい順で返します
func (s *RoomService) List(ctx context.Context) ([]models.Room, error) {
	return s.repo.ListRooms(ctx)
}

// Get は指定されたルームを取得します
func (s *RoomService) Get(ctx context.Context, roomId string) (models.Room, error) {
	room, ok, err := s.repo.GetRoom(ctx, roomId)
	if err != nil {
		return models.Room{}, err
	}
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	return room, nil
}

// Join はユーザーをルームの永続メンバーに追加します
// すでにメンバーの場合はtrueを返し、エラーにはしません（冪等）
func (s *RoomService) Join(ctx context.Context, roomId, userId string) (bool, error) {
	exists, err := s.repo.ExistsRoom(ctx, roomId)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrRoomNotFound
	}

	already, err := s.repo.IsMember(ctx, roomId, userId)
	if err != nil {
		return false, err
	}
	if already {
		return true, nil
	}
	return false, s.repo.AddMember(ctx, roomId, userId)
}

// Leave はユーザーをルームの永続メンバーから外します（冪等）
// ルームが空になっても削除はしません
func (s *RoomService) Leave(ctx context.Context, roomId, userId string) error {
	exists, err := s.repo.ExistsRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if !exists {
		return ErrRoomNotFound
	}
	return s.repo.RemoveMember(ctx, roomId, userId)
}

// IsMember はユーザーがルームの永続メンバーかを返します
func (s *RoomService) IsMember(ctx context.Context, roomId, userId string) (bool, error) {
	return s.repo.IsMember(ctx, roomId, userId)
}
