package service

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/realtime-chat/api-server/internal/hub"
	"github.com/realtime-chat/api-server/internal/idgen"
	"github.com/realtime-chat/api-server/internal/models"
	"github.com/realtime-chat/api-server/internal/repo"
)

// ページネーションのデフォルト値と上限
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Broadcaster はルームを購読中のライブ接続へイベントを配信します
// hub.Hubが実装します
type Broadcaster interface {
	Broadcast(roomId string, ev hub.Event, exclude *hub.Client)
}

// roomSeq はルームごとの直列化ポイントです
// muを永続化〜ブロードキャストの間保持することで、
// 同一ルームのメッセージ順序がログと配信で一致することを保証します
type roomSeq struct {
	mu     sync.Mutex
	lastTS int64 // 最後に割り当てたタイムスタンプ（Unixミリ秒）
	loaded bool  // lastTSをストアから読み込み済みか
}

// MessageService はメッセージの検証・永続化・ブロードキャストを提供します
type MessageService struct {
	rooms    repo.RoomRepo
	messages repo.MessageRepo
	bc       Broadcaster

	mu   sync.Mutex
	seqs map[string]*roomSeq // ルームID -> 直列化ポイント
}

// NewMessageService は新しいMessageServiceを作成します
func NewMessageService(rooms repo.RoomRepo, messages repo.MessageRepo, bc Broadcaster) *MessageService {
	return &MessageService{
		rooms:    rooms,
		messages: messages,
		bc:       bc,
		seqs:     make(map[string]*roomSeq),
	}
}

func (s *MessageService) seqFor(roomId string) *roomSeq {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqs[roomId]
	if !ok {
		seq = &roomSeq{}
		s.seqs[roomId] = seq
	}
	return seq
}

// Send はメッセージを検証・永続化し、永続化されたメッセージを
// ルームの全購読者（送信者自身を含む）にブロードキャストします
// 永続化が失敗した場合、ブロードキャストは行いません
func (s *MessageService) Send(ctx context.Context, roomId, senderId, senderUsername, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > models.MaxContentLen {
		return models.Message{}, ErrContentTooLong
	}

	if err := s.requireMember(ctx, roomId, senderId); err != nil {
		return models.Message{}, err
	}

	// ルームごとのロックでタイムスタンプ割り当て〜永続化〜配信を直列化する
	// 後から書かれたメッセージが先に配信されることはない
	seq := s.seqFor(roomId)
	seq.mu.Lock()
	defer seq.mu.Unlock()

	if !seq.loaded {
		last, err := s.messages.LastTimestamp(ctx, roomId)
		if err != nil {
			return models.Message{}, err
		}
		seq.lastTS = last
		seq.loaded = true
	}

	ts := time.Now().UnixMilli()
	if ts <= seq.lastTS {
		// ルーム内で厳密に増加させる（sinceカーソルの排他境界を正確にするため）
		ts = seq.lastTS + 1
	}

	msg := models.Message{
		Id:             idgen.NewULID(),
		Content:        content,
		SenderId:       senderId,
		SenderUsername: senderUsername,
		RoomId:         roomId,
		Timestamp:      ts,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return models.Message{}, err
	}
	seq.lastTS = ts

	// 永続化成功が配信の前提条件
	s.bc.Broadcast(roomId, hub.Event{Type: "receive_message", Payload: msg}, nil)
	return msg, nil
}

// Page は指定ページのメッセージを時系列順（古い順）で返します
// ストアからは新しい順で取得し、反転して返します
func (s *MessageService) Page(ctx context.Context, roomId, userId string, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	if err := s.requireMember(ctx, roomId, userId); err != nil {
		return nil, err
	}

	offset := (page - 1) * limit
	msgs, err := s.messages.Page(ctx, roomId, offset, limit)
	if err != nil {
		return nil, err
	}

	// 新しい順 -> 古い順に反転
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Since はcursorより厳密に後のメッセージを時系列順で返します
// ライブ接続を維持できないクライアントのポーリング用です
func (s *MessageService) Since(ctx context.Context, roomId, userId string, cursor int64) ([]models.Message, error) {
	if err := s.requireMember(ctx, roomId, userId); err != nil {
		return nil, err
	}
	return s.messages.Since(ctx, roomId, cursor)
}

// requireMember はルームの存在と永続メンバーシップを確認します
func (s *MessageService) requireMember(ctx context.Context, roomId, userId string) error {
	exists, err := s.rooms.ExistsRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if !exists {
		return ErrRoomNotFound
	}
	member, err := s.rooms.IsMember(ctx, roomId, userId)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotAMember
	}
	return nil
}
