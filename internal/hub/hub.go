package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub はライブ接続とそのルーム購読を管理します
// スレッドセーフな実装により、複数のgoroutineから同時にアクセス可能です
// 購読は接続ごとのプロセスローカルな状態であり、
// 永続的なルームメンバーシップとは独立しています
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{} // ルームID -> 購読中の接続集合
	subs  map[*Client]map[string]struct{} // 接続 -> 購読中のルームID集合
}

// NewHub は新しいHubを作成します
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		subs:  make(map[*Client]map[string]struct{}),
	}
}

// Subscribe は接続をルームの配信先集合に追加します
// 新規に購読した場合はtrue、すでに購読済みの場合はfalseを返します
func (h *Hub) Subscribe(c *Client, roomId string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomId]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[roomId] = room
	}
	if _, exists := room[c]; exists {
		return false
	}
	room[c] = struct{}{}

	sub, ok := h.subs[c]
	if !ok {
		sub = make(map[string]struct{})
		h.subs[c] = sub
	}
	sub[roomId] = struct{}{}
	return true
}

// Unsubscribe は接続をルームの配信先集合から外します
// 購読していた場合はtrueを返します
func (h *Hub) Unsubscribe(c *Client, roomId string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubscribeLocked(c, roomId)
}

func (h *Hub) unsubscribeLocked(c *Client, roomId string) bool {
	room, ok := h.rooms[roomId]
	if !ok {
		return false
	}
	if _, exists := room[c]; !exists {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, roomId)
	}
	if sub, ok := h.subs[c]; ok {
		delete(sub, roomId)
	}
	return true
}

// IsSubscribed は接続がルームを購読中かを返します
func (h *Hub) IsSubscribed(c *Client, roomId string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[roomId]
	if !ok {
		return false
	}
	_, exists := room[c]
	return exists
}

// Remove は接続をすべてのルームから同期的に外します
// 切断時に呼び出してください。以降この接続への配信は行われません
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomId := range h.subs[c] {
		h.unsubscribeLocked(c, roomId)
	}
	delete(h.subs, c)
}

// Subscribers はルームを購読中の接続数を返します
func (h *Hub) Subscribers(roomId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomId])
}

// Broadcast はルームを購読中の全接続にイベントを送信します
// excludeがnilでない場合、その接続には送信しません
// （プレゼンス通知で送信元を除外するために使用します。
// メッセージ配信は送信者自身も含めて配信します）
func (h *Hub) Broadcast(roomId string, ev Event, exclude *Client) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("failed to marshal broadcast event %q: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomId] {
		if c == exclude {
			continue
		}
		c.enqueue(b)
	}
}
