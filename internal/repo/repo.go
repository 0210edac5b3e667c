// Package repo はデータ永続化のインターフェースと実装を提供します
package repo

import (
	"context"
	"errors"

	"github.com/realtime-chat/api-server/internal/models"
)

// リポジトリ共通のエラー
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateRoomName = errors.New("room name already exists")
)

// UserRepo はユーザーアカウントの永続化を担当します
type UserRepo interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userId string) (models.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, bool, error)
	// FindTaken はexcludeId以外のユーザーでusernameまたはemailが
	// 使用済みかを調べます（登録・プロフィール更新の競合チェック用）
	FindTaken(ctx context.Context, excludeId, username, email string) (models.User, bool, error)
	UpdateUser(ctx context.Context, user models.User) error
	DeleteUser(ctx context.Context, userId string) error
}

// RoomRepo はルームと永続メンバーシップを担当します
// AddMember / RemoveMember は冪等です（重複追加・不在削除は成功扱い）
type RoomRepo interface {
	CreateRoom(ctx context.Context, room models.Room) error
	// DeleteRoom はルームと付随データ（メンバー集合、名前の予約）を削除します
	// 存在しないルームの削除は成功扱いです
	DeleteRoom(ctx context.Context, roomId string) error
	GetRoom(ctx context.Context, roomId string) (models.Room, bool, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	ExistsRoom(ctx context.Context, roomId string) (bool, error)

	AddMember(ctx context.Context, roomId, userId string) error
	RemoveMember(ctx context.Context, roomId, userId string) error
	IsMember(ctx context.Context, roomId, userId string) (bool, error)
	// RemoveMemberEverywhere は全ルームからユーザーを除名し、
	// 所属していたルームのID一覧を返します（退会処理用）
	RemoveMemberEverywhere(ctx context.Context, userId string) ([]string, error)
}

// MessageRepo はルームごとの追記専用メッセージログを担当します
type MessageRepo interface {
	Append(ctx context.Context, msg models.Message) error
	// Page はoffsetから最大limit件を新しい順で返します
	// （ページネーションの正しさのため新しい順で取得し、呼び出し側で反転します）
	Page(ctx context.Context, roomId string, offset, limit int) ([]models.Message, error)
	// Since はcursorより厳密に後のメッセージを古い順で返します
	Since(ctx context.Context, roomId string, cursor int64) ([]models.Message, error)
	// LastTimestamp はルーム内の最新メッセージのタイムスタンプを返します
	// メッセージがない場合は0を返します
	LastTimestamp(ctx context.Context, roomId string) (int64, error)
	// PurgeSender は指定ユーザーが送信したメッセージをルームから削除します
	PurgeSender(ctx context.Context, roomId, userId string) error
}
