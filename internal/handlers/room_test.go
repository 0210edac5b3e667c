package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/realtime-chat/api-server/internal/models"
)

// doRequest は認証トークン付きでJSONリクエストを送信します
func (e *testEnv) doRequest(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func assertErrorMessage(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	decodeInto(t, resp, &body)
	if body.Message != want {
		t.Fatalf("expected message %q, got %q", want, body.Message)
	}
}

func TestRegisterLoginVerify(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doRequest(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "secret123",
	})
	assertStatus(t, resp, 201)
	var registered struct {
		Token string `json:"token"`
		User  struct {
			Id       string `json:"id"`
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
	}
	decodeInto(t, resp, &registered)
	if registered.Token == "" || registered.User.Id == "" {
		t.Fatalf("missing token or user id: %+v", registered)
	}
	if registered.User.Username != "alice" || registered.User.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", registered.User)
	}

	// 同じメールアドレスでの再登録は拒否される
	resp = env.doRequest(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "secret123",
	})
	assertStatus(t, resp, 409)

	// 必須フィールドの欠落
	resp = env.doRequest(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "bob",
	})
	assertStatus(t, resp, 400)
	assertErrorMessage(t, resp, "Username, email, and password are required")

	resp = env.doRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "secret123",
	})
	assertStatus(t, resp, 200)
	var loggedIn struct {
		Token string `json:"token"`
	}
	decodeInto(t, resp, &loggedIn)
	if loggedIn.Token == "" {
		t.Fatal("login did not return a token")
	}

	resp = env.doRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	assertStatus(t, resp, 401)
	assertErrorMessage(t, resp, "Invalid email or password")

	resp = env.doRequest(t, http.MethodGet, "/api/auth/verify", loggedIn.Token, nil)
	assertStatus(t, resp, 200)

	resp = env.doRequest(t, http.MethodGet, "/api/auth/verify", "", nil)
	assertStatus(t, resp, 401)
	assertErrorMessage(t, resp, "Access token required")
}

func TestCreateAndListRooms(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "u-alice", "alice")

	resp := env.doRequest(t, http.MethodPost, "/api/rooms", token, map[string]string{
		"name":        "general",
		"description": "daily chatter",
	})
	assertStatus(t, resp, 201)
	var room models.Room
	decodeInto(t, resp, &room)
	if room.RoomId == "" || room.Name != "general" || room.CreatedBy != "u-alice" {
		t.Fatalf("unexpected room: %+v", room)
	}
	if len(room.Members) != 1 || room.Members[0] != "u-alice" {
		t.Fatalf("creator is not the initial member: %+v", room.Members)
	}

	// ルーム名はグローバルにユニーク
	resp = env.doRequest(t, http.MethodPost, "/api/rooms", token, map[string]string{"name": "general"})
	assertStatus(t, resp, 409)
	assertErrorMessage(t, resp, "Room name already exists")

	resp = env.doRequest(t, http.MethodPost, "/api/rooms", token, map[string]string{"name": "   "})
	assertStatus(t, resp, 400)

	resp = env.doRequest(t, http.MethodGet, "/api/rooms", token, nil)
	assertStatus(t, resp, 200)
	var rooms []models.Room
	decodeInto(t, resp, &rooms)
	if len(rooms) != 1 || rooms[0].RoomId != room.RoomId {
		t.Fatalf("unexpected room list: %+v", rooms)
	}

	// 認証なしでは一覧も取得できない
	resp = env.doRequest(t, http.MethodGet, "/api/rooms", "", nil)
	assertStatus(t, resp, 401)
}

func TestRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "u-alice", "alice")
	roomId := env.seedRoom(t, "general", "u-alice")

	// 1MBの上限を超えるボディは読み切らずに拒否される
	resp := env.doRequest(t, http.MethodPost, "/api/rooms/"+roomId+"/messages", token, map[string]string{
		"content": strings.Repeat("x", (1<<20)+1),
	})
	assertStatus(t, resp, http.StatusRequestEntityTooLarge)
	assertErrorMessage(t, resp, "request body too large")
}

func TestJoinAndLeaveRoom(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u-alice", "alice")
	bobToken := env.seedUser(t, "u-bob", "bob")
	roomId := env.seedRoom(t, "general", "u-alice")

	resp := env.doRequest(t, http.MethodPost, "/api/rooms/"+roomId+"/join", bobToken, nil)
	assertStatus(t, resp, 200)
	assertErrorMessage(t, resp, "Successfully joined the room")

	// 再参加はエラーにならない
	resp = env.doRequest(t, http.MethodPost, "/api/rooms/"+roomId+"/join", bobToken, nil)
	assertStatus(t, resp, 200)
	assertErrorMessage(t, resp, "Already a member of this room - access granted")

	resp = env.doRequest(t, http.MethodPost, "/api/rooms/"+roomId+"/leave", bobToken, nil)
	assertStatus(t, resp, 200)

	resp = env.doRequest(t, http.MethodPost, "/api/rooms/no-such-room/join", bobToken, nil)
	assertStatus(t, resp, 404)
	assertErrorMessage(t, resp, "Chat room not found")
}

func TestMessagePagination(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "u-alice", "alice")
	roomId := env.seedRoom(t, "general", "u-alice")

	for i := 0; i < 5; i++ {
		resp := env.doRequest(t, http.MethodPost, "/api/rooms/"+roomId+"/messages", token, map[string]string{
			"content": fmt.Sprintf("m%d", i),
		})
		assertStatus(t, resp, 201)
	}

	// page=1 は最新のlimit件を時系列順で返す
	resp := env.doRequest(t, http.MethodGet, "/api/rooms/"+roomId+"/messages?page=1&limit=2", token, nil)
	assertStatus(t, resp, 200)
	var msgs []models.Message
	decodeInto(t, resp, &msgs)
	if len(msgs) != 2 || msgs[0].Content != "m3" || msgs[1].Content != "m4" {
		t.Fatalf("unexpected page 1: %+v", msgs)
	}

	resp = env.doRequest(t, http.MethodGet, "/api/rooms/"+roomId+"/messages?page=3&limit=2", token, nil)
	assertStatus(t, resp, 200)
	decodeInto(t, resp, &msgs)
	if len(msgs) != 1 || msgs[0].Content != "m0" {
		t.Fatalf("unexpected page 3: %+v", msgs)
	}

	// 上限を超えるlimitは丸められるだけでエラーにしない
	resp = env.doRequest(t, http.MethodGet, "/api/rooms/"+roomId+"/messages?limit=100000", token, nil)
	assertStatus(t, resp, 200)
	decodeInto(t, resp, &msgs)
	if len(msgs) != 5 {
		t.Fatalf("expected all 5 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp <= msgs[i-1].Timestamp {
			t.Fatalf("timestamps not strictly increasing: %+v", msgs)
		}
	}
}

func TestMessagesRequireMembership(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u-alice", "alice")
	carolToken := env.seedUser(t, "u-carol", "carol")
	roomId := env.seedRoom(t, "private", "u-alice")

	resp := env.doRequest(t, http.MethodGet, "/api/rooms/"+roomId+"/messages", carolToken, nil)
	assertStatus(t, resp, 403)
	assertErrorMessage(t, resp, "Access denied - not a member of this room")

	resp = env.doRequest(t, http.MethodPost, "/api/rooms/"+roomId+"/messages", carolToken, map[string]string{"content": "hi"})
	assertStatus(t, resp, 403)

	resp = env.doRequest(t, http.MethodGet, "/api/rooms/no-such-room/messages", carolToken, nil)
	assertStatus(t, resp, 404)
}

func TestMessagesSince(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "u-alice", "alice")
	roomId := env.seedRoom(t, "general", "u-alice")

	var sent []models.Message
	for i := 0; i < 3; i++ {
		msg, err := env.msgSvc.Send(context.Background(), roomId, "u-alice", "alice", fmt.Sprintf("m%d", i))
		if err != nil {
			t.Fatalf("failed to send message: %v", err)
		}
		sent = append(sent, msg)
	}

	// cursorと同時刻のメッセージは含めない（厳密によりあとのみ）
	path := fmt.Sprintf("/api/rooms/%s/messages/since?cursor=%d", roomId, sent[0].Timestamp)
	resp := env.doRequest(t, http.MethodGet, path, token, nil)
	assertStatus(t, resp, 200)
	var msgs []models.Message
	decodeInto(t, resp, &msgs)
	if len(msgs) != 2 || msgs[0].Id != sent[1].Id || msgs[1].Id != sent[2].Id {
		t.Fatalf("unexpected since result: %+v", msgs)
	}

	resp = env.doRequest(t, http.MethodGet, "/api/rooms/"+roomId+"/messages/since?cursor=abc", token, nil)
	assertStatus(t, resp, 400)
	assertErrorMessage(t, resp, "cursor must be a unix millisecond timestamp")
}
