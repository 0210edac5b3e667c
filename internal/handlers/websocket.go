package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/realtime-chat/api-server/internal/hub"
	"github.com/realtime-chat/api-server/internal/service"
)

const (
	wsReadWait       = 60 * time.Second // pong/メッセージを待つ最大時間
	wsMaxMessageSize = 16 << 10         // 受信フレームの最大サイズ
)

// clientEvent はクライアントから受信するイベントの外側の構造
type clientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// joinPayload / leavePayload のuserId・usernameは互換性のための参考情報です
// 認可は常に接続の認証済みアイデンティティに対して行います
type joinPayload struct {
	RoomId   string `json:"roomId"`
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

type leavePayload struct {
	RoomId   string `json:"roomId"`
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

// sendPayload のtimestampはクライアント側の参考値で、
// 正式なタイムスタンプは永続化時にサーバーが割り当てます
type sendPayload struct {
	Content        string `json:"content"`
	RoomId         string `json:"roomId"`
	SenderId       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
	Timestamp      int64  `json:"timestamp"`
}

// presencePayload は参加・退出通知のペイロード
type presencePayload struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// joinedRoomPayload は参加成功の応答ペイロード
type joinedRoomPayload struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
}

// WebSocketHandler はリアルタイムゲートウェイです
// ハンドシェイク時に一度だけ認証し、以降のイベントごとに
// ルームメンバーシップによる認可を行います
type WebSocketHandler struct {
	authSvc  *service.AuthService
	roomSvc  *service.RoomService
	msgSvc   *service.MessageService
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler は新しいWebSocketHandlerを作成します
func NewWebSocketHandler(authSvc *service.AuthService, roomSvc *service.RoomService, msgSvc *service.MessageService, h *hub.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		authSvc: authSvc,
		roomSvc: roomSvc,
		msgSvc:  msgSvc,
		hub:     h,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

// originChecker は許可オリジン一覧に対するOriginチェック関数を返します
// 一覧が空の場合とOriginヘッダーがないクライアントはすべて許可します
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket はWebSocket接続を処理します
// 接続後、以下の処理を行います:
// 1. トークンの検証（失敗した場合はアップグレード前に拒否）
// 2. WebSocketへのアップグレードとクライアントの登録
// 3. イベント受信ループ（join_room / leave_room / send_message / ping）
// 4. 切断時の購読解除とクリーンアップ（user_leftは送信しない）
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	// 認証は接続につき一度だけ。失敗した接続はイベントを一切処理しない
	user, err := h.authSvc.VerifyToken(r.Context(), token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, authErrorMessage(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := hub.NewClient(conn, user.UserId, user.Username)
	go client.WritePump()

	defer func() {
		// 切断時はすべての購読を同期的に解除する
		// 明示的なleave_room以外でuser_leftは送信しない
		h.hub.Remove(client)
		client.Close()
	}()

	log.Printf("WebSocket connected: userId=%s, username=%s", user.UserId, user.Username)

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadWait))
	})

	// イベント受信ループ
	for {
		var ev clientEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (userId=%s): %v", user.UserId, err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))

		switch ev.Type {
		case "join_room":
			h.handleJoin(client, ev.Payload)
		case "leave_room":
			h.handleLeave(client, ev.Payload)
		case "send_message":
			h.handleSend(client, ev.Payload)
		case "ping":
			// ping/pongで接続を維持
			client.SendEvent(hub.Event{Type: "pong"})
		default:
			log.Printf("Unknown event type from userId=%s: %s", user.UserId, ev.Type)
		}
	}
}

// handleJoin はルームへの購読を処理します
// 処理の流れ:
// 1. 永続メンバーシップの確認（メンバー以外は購読させない）
// 2. 購読してからメンバーシップを再検証（並行する除名との競合対策）
// 3. 新規購読なら他の購読者にuser_joinedを通知
// 4. 要求元にjoined_roomを応答（再参加でも成功を返す）
func (h *WebSocketHandler) handleJoin(client *hub.Client, raw json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("Failed to unmarshal join payload: %v", err)
		h.sendError(client, "Failed to join room")
		return
	}
	roomId := normalizeID(p.RoomId)
	if validateRoomId(roomId) != nil {
		h.sendError(client, "Failed to join room")
		return
	}

	ctx := context.Background()
	member, err := h.roomSvc.IsMember(ctx, roomId, client.UserId)
	if err != nil {
		log.Printf("Join room error (roomId=%s, userId=%s): %v", roomId, client.UserId, err)
		h.sendError(client, "Failed to join room")
		return
	}
	if !member {
		h.sendError(client, "Access denied - not a member of this room")
		return
	}

	newly := h.hub.Subscribe(client, roomId)

	// メンバーシップ確認と購読はひとつの認可判断として扱う
	// 購読と並行して除名された場合は取り消す
	member, err = h.roomSvc.IsMember(ctx, roomId, client.UserId)
	if err != nil || !member {
		h.hub.Unsubscribe(client, roomId)
		h.sendError(client, "Access denied - not a member of this room")
		return
	}

	if newly {
		// 既存の購読者に参加を通知（再参加では重複通知しない）
		h.hub.Broadcast(roomId, hub.Event{
			Type: "user_joined",
			Payload: presencePayload{
				Username:  client.Username,
				Message:   fmt.Sprintf("%s joined the room", client.Username),
				Timestamp: time.Now().UnixMilli(),
			},
		}, client)
	}

	client.SendEvent(hub.Event{
		Type:    "joined_room",
		Payload: joinedRoomPayload{RoomId: roomId, Message: "Successfully joined the room"},
	})

	log.Printf("%s joined room: %s", client.Username, roomId)
}

// handleLeave はルームの購読解除を処理します
// 永続メンバーシップは変更しません（それはルームAPIのleave操作の役割）
func (h *WebSocketHandler) handleLeave(client *hub.Client, raw json.RawMessage) {
	var p leavePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("Failed to unmarshal leave payload: %v", err)
		return
	}
	roomId := normalizeID(p.RoomId)
	if validateRoomId(roomId) != nil {
		return
	}

	if h.hub.Unsubscribe(client, roomId) {
		// 残りの購読者に退出を通知
		h.hub.Broadcast(roomId, hub.Event{
			Type: "user_left",
			Payload: presencePayload{
				Username:  client.Username,
				Message:   fmt.Sprintf("%s left the room", client.Username),
				Timestamp: time.Now().UnixMilli(),
			},
		}, client)
	}

	log.Printf("%s left room: %s", client.Username, roomId)
}

// handleSend はメッセージ送信を処理します
// 処理の流れ:
// 1. 申告された送信者と接続のアイデンティティの一致確認
// 2. サービス層で検証・メンバーシップ確認・永続化・ブロードキャスト
//    （永続化成功が配信の前提条件。ブロードキャストは送信者も受信する）
// エラーはすべて送信元の接続にのみ通知します
func (h *WebSocketHandler) handleSend(client *hub.Client, raw json.RawMessage) {
	var p sendPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("Failed to unmarshal send payload: %v", err)
		h.sendError(client, "Failed to send message")
		return
	}

	if p.SenderId != client.UserId {
		log.Printf("Authentication mismatch: userId=%s trying to send as %s", client.UserId, p.SenderId)
		h.sendError(client, "Authentication error: Cannot send message as different user")
		return
	}

	roomId := normalizeID(p.RoomId)
	if validateRoomId(roomId) != nil {
		h.sendError(client, "Failed to send message")
		return
	}

	// 表示名のスナップショットは接続の認証済み表示名を使用する
	_, err := h.msgSvc.Send(context.Background(), roomId, client.UserId, client.Username, p.Content)
	if err != nil {
		log.Printf("Send message error (roomId=%s, userId=%s): %v", roomId, client.UserId, err)
		h.sendError(client, sendErrorMessage(err))
		return
	}
}

// sendErrorMessage は送信エラーをクライアント向けメッセージに対応付けます
func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrNotAMember):
		return "Access denied - not a member of this room"
	case errors.Is(err, service.ErrRoomNotFound):
		return "Chat room not found"
	case service.IsValidationError(err):
		return err.Error()
	default:
		return "Failed to send message"
	}
}

// sendError は要求元の接続にのみerrorイベントを送信します
// 他の購読者には影響せず、接続も切断しません
func (h *WebSocketHandler) sendError(client *hub.Client, msg string) {
	client.SendEvent(hub.Event{
		Type:    "error",
		Payload: map[string]string{"message": msg},
	})
}
