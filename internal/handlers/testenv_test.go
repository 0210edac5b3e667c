package handlers_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/realtime-chat/api-server/internal/auth"
	"github.com/realtime-chat/api-server/internal/handlers"
	"github.com/realtime-chat/api-server/internal/hub"
	httpx "github.com/realtime-chat/api-server/internal/http"
	"github.com/realtime-chat/api-server/internal/models"
	"github.com/realtime-chat/api-server/internal/repo"
	"github.com/realtime-chat/api-server/internal/service"
)

// testEnv はインメモリのストアで構築したAPIサーバー一式です
type testEnv struct {
	ts       *httptest.Server
	users    *repo.MemUserRepo
	rooms    *repo.MemRoomRepo
	messages *repo.MemMessageRepo
	tokens   *auth.TokenManager
	authSvc  *service.AuthService
	roomSvc  *service.RoomService
	msgSvc   *service.MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := repo.NewMemUserRepo()
	rooms := repo.NewMemRoomRepo()
	messages := repo.NewMemMessageRepo()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	hasher := auth.NewPasswordHasher()

	h := hub.NewHub()
	authSvc := service.NewAuthService(users, rooms, messages, tokens, hasher)
	roomSvc := service.NewRoomService(rooms)
	msgSvc := service.NewMessageService(rooms, messages, h)

	authH := handlers.NewAuthHandler(authSvc)
	roomH := handlers.NewRoomHandler(roomSvc, msgSvc)
	wsH := handlers.NewWebSocketHandler(authSvc, roomSvc, msgSvc, h, nil)

	ts := httptest.NewServer(httpx.NewRouter(authSvc, authH, roomH, wsH, nil))
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:       ts,
		users:    users,
		rooms:    rooms,
		messages: messages,
		tokens:   tokens,
		authSvc:  authSvc,
		roomSvc:  roomSvc,
		msgSvc:   msgSvc,
	}
}

// seedUser はユーザーを直接登録してトークンを返します
// （bcryptを通さないのでパスワードではログインできません）
func (e *testEnv) seedUser(t *testing.T, userId, username string) string {
	t.Helper()
	err := e.users.CreateUser(context.Background(), models.User{
		UserId:       userId,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "!",
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	token, err := e.tokens.Generate(userId)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// seedRoom はルームを作成して指定メンバーを参加させ、roomIdを返します
func (e *testEnv) seedRoom(t *testing.T, name, creatorId string, memberIds ...string) string {
	t.Helper()
	room, err := e.roomSvc.Create(context.Background(), name, "", creatorId)
	if err != nil {
		t.Fatalf("failed to seed room: %v", err)
	}
	for _, id := range memberIds {
		if _, err := e.roomSvc.Join(context.Background(), room.RoomId, id); err != nil {
			t.Fatalf("failed to add member %s: %v", id, err)
		}
	}
	return room.RoomId
}

// wsEvent はサーバーから受信するイベント
type wsEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// dialWS はトークン付きでリアルタイムゲートウェイに接続します
func (e *testEnv) dialWS(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("failed to dial websocket (status=%d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readWS はイベントをひとつ読み取ります
func readWS(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	return ev
}

// expectNone は一定時間イベントが来ないことを確認します
// 読み取りタイムアウト後は接続を再利用できないため、
// その接続への最後の操作として使用してください
func expectNone(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var ev wsEvent
	if err := conn.ReadJSON(&ev); err == nil {
		t.Fatalf("unexpected event delivered: %+v", ev)
	}
}

// sendWS はイベントをひとつ送信します
func sendWS(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteJSON(map[string]any{"type": eventType, "payload": payload}); err != nil {
		t.Fatalf("failed to write event: %v", err)
	}
}

// decodePayload はイベントのペイロードを展開します
func decodePayload(t *testing.T, ev wsEvent, dst any) {
	t.Helper()
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		t.Fatalf("failed to decode %s payload: %v", ev.Type, err)
	}
}
