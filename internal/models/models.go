// Package models はアプリケーションで使用するデータ構造を定義します
package models

import "time"

// バリデーション用の上限値
const (
	MaxRoomNameLen    = 50   // ルーム名の最大文字数
	MaxDescriptionLen = 200  // ルーム説明の最大文字数
	MaxContentLen     = 1000 // メッセージ本文の最大文字数
)

// User はチャットを利用するユーザーアカウントを表します
// PasswordHash はAPIレスポンスに含めません
type User struct {
	UserId       string    `json:"userId" gorm:"column:user_id;primaryKey;type:text"`
	Username     string    `json:"username" gorm:"uniqueIndex;not null;type:text"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null;type:text"`
	PasswordHash string    `json:"-" gorm:"not null;type:text"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}

// TableName はUserエンティティのテーブル名を返します
func (User) TableName() string { return "users" }

// Room はチャットルームの情報を表します
// Members は参加しているユーザーIDの集合です（順序は保証しません）
type Room struct {
	RoomId      string   `json:"roomId"`
	Name        string   `json:"name"`        // ルーム名（ユニーク、最大50文字）
	Description string   `json:"description"` // ルームの説明（最大200文字）
	Members     []string `json:"members"`     // 参加メンバーのユーザーID一覧
	CreatedBy   string   `json:"createdBy"`   // ルーム作成者のユーザーID
	CreatedAt   int64    `json:"createdAt"`   // ルーム作成日時（Unixミリ秒）
}

// Message はルームに投稿されたメッセージを表します
// Timestamp はサーバーが永続化時に割り当てます（ルーム内で単調増加）
// SenderUsername は送信時点の表示名のスナップショットです
type Message struct {
	Id             string `json:"id"`                 // メッセージの一意な識別子（ULID）
	Content        string `json:"content"`            // 本文（最大1000文字）
	SenderId       string `json:"senderId"`           // 送信者のユーザーID
	SenderUsername string `json:"senderUsername"`     // 送信時点の送信者の表示名
	RoomId         string `json:"roomId"`             // 投稿先ルームのID
	Timestamp      int64  `json:"timestamp"`          // 永続化日時（Unixミリ秒）
	Edited         bool   `json:"edited"`             // 編集済みフラグ（将来の拡張用）
	EditedAt       int64  `json:"editedAt,omitempty"` // 編集日時（Unixミリ秒、未編集なら0）
}
