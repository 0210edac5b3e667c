package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/realtime-chat/api-server/internal/service"
)

// RoomHandler はルームとメッセージのHTTPエンドポイントを処理します
type RoomHandler struct {
	rooms    *service.RoomService
	messages *service.MessageService
}

// NewRoomHandler は新しいRoomHandlerを作成します
func NewRoomHandler(rooms *service.RoomService, messages *service.MessageService) *RoomHandler {
	return &RoomHandler{rooms: rooms, messages: messages}
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

// List は全ルームを新しい順で返します
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.List(r.Context())
	if err != nil {
		log.Printf("List rooms error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, rooms)
}

// Create は新しいルームを作成します
// 作成者は自動的に最初のメンバーになります
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	var in createRoomRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	room, err := h.rooms.Create(r.Context(), in.Name, in.Description, user.UserId)
	if err != nil {
		log.Printf("Create room error (userId=%s): %v", user.UserId, err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, room)
}

// Join はユーザーをルームの永続メンバーに追加します
// すでにメンバーでも成功を返します
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	already, err := h.rooms.Join(r.Context(), roomId, user.UserId)
	if err != nil {
		log.Printf("Join room error (roomId=%s, userId=%s): %v", roomId, user.UserId, err)
		h.writeServiceError(w, err)
		return
	}
	if already {
		respondJSON(w, http.StatusOK, map[string]any{"message": "Already a member of this room - access granted"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Successfully joined the room"})
}

// Leave はユーザーをルームの永続メンバーから外します
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.rooms.Leave(r.Context(), roomId, user.UserId); err != nil {
		log.Printf("Leave room error (roomId=%s, userId=%s): %v", roomId, user.UserId, err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Successfully left the room"})
}

// GetMessages は指定ページのメッセージを時系列順で返します
// メンバー以外には403を返します
func (h *RoomHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", service.DefaultPageLimit)

	msgs, err := h.messages.Page(r.Context(), roomId, user.UserId, page, limit)
	if err != nil {
		log.Printf("Get messages error (roomId=%s, userId=%s): %v", roomId, user.UserId, err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

// GetMessagesSince はcursorより後のメッセージを時系列順で返します
// ライブ接続を維持できないクライアントのポーリング用です
func (h *RoomHandler) GetMessagesSince(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cursor, err := strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "cursor must be a unix millisecond timestamp")
		return
	}

	msgs, err := h.messages.Since(r.Context(), roomId, user.UserId, cursor)
	if err != nil {
		log.Printf("Get messages since error (roomId=%s, userId=%s): %v", roomId, user.UserId, err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

// PostMessage はメッセージを永続化してブロードキャストします
// WebSocketのsend_messageイベントと同じパイプラインを使用します
func (h *RoomHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	roomId := normalizeID(chi.URLParam(r, "roomId"))
	if err := validateRoomId(roomId); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in postMessageRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	msg, err := h.messages.Send(r.Context(), roomId, user.UserId, user.Username, in.Content)
	if err != nil {
		log.Printf("Post message error (roomId=%s, userId=%s): %v", roomId, user.UserId, err)
		h.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

// queryInt はクエリパラメータを整数として取得します
// 無効な値の場合はデフォルト値を返します
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func (h *RoomHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotAMember):
		respondError(w, http.StatusForbidden, "Access denied - not a member of this room")
	case errors.Is(err, service.ErrRoomNotFound):
		respondError(w, http.StatusNotFound, "Chat room not found")
	case errors.Is(err, service.ErrDuplicateRoomName):
		respondError(w, http.StatusConflict, "Room name already exists")
	case service.IsValidationError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
