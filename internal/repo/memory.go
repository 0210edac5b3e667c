package repo

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/realtime-chat/api-server/internal/models"
)

// このファイルのインメモリ実装はテストフィクスチャです
// 本番構成ではRedis / GORM実装を使用します

var (
	errAppendFailed    = errors.New("append failed")
	errAddMemberFailed = errors.New("add member failed")
)

// MemUserRepo はUserRepoのインメモリ実装です
type MemUserRepo struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemUserRepo() *MemUserRepo {
	return &MemUserRepo{users: make(map[string]models.User)}
}

func (r *MemUserRepo) CreateUser(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.UserId] = user
	return nil
}

func (r *MemUserRepo) GetUser(_ context.Context, userId string) (models.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userId]
	return u, ok, nil
}

func (r *MemUserRepo) GetUserByEmail(_ context.Context, email string) (models.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return models.User{}, false, nil
}

func (r *MemUserRepo) FindTaken(_ context.Context, excludeId, username, email string) (models.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.UserId == excludeId {
			continue
		}
		if u.Username == username || u.Email == email {
			return u, true, nil
		}
	}
	return models.User{}, false, nil
}

func (r *MemUserRepo) UpdateUser(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[user.UserId]
	if !ok {
		return ErrUserNotFound
	}
	u.Username = user.Username
	u.Email = user.Email
	r.users[user.UserId] = u
	return nil
}

func (r *MemUserRepo) DeleteUser(_ context.Context, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userId]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, userId)
	return nil
}

// MemRoomRepo はRoomRepoのインメモリ実装です
type MemRoomRepo struct {
	mu       sync.RWMutex
	rooms    map[string]models.Room
	members  map[string]map[string]struct{} // roomId -> メンバー集合
	failNext bool                           // テスト用: 次のAddMemberを失敗させる
}

func NewMemRoomRepo() *MemRoomRepo {
	return &MemRoomRepo{
		rooms:   make(map[string]models.Room),
		members: make(map[string]map[string]struct{}),
	}
}

func (r *MemRoomRepo) CreateRoom(_ context.Context, room models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rooms {
		if existing.Name == room.Name {
			return ErrDuplicateRoomName
		}
	}
	room.Members = nil
	r.rooms[room.RoomId] = room
	r.members[room.RoomId] = make(map[string]struct{})
	return nil
}

func (r *MemRoomRepo) DeleteRoom(_ context.Context, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomId)
	delete(r.members, roomId)
	return nil
}

func (r *MemRoomRepo) GetRoom(_ context.Context, roomId string) (models.Room, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return models.Room{}, false, nil
	}
	room.Members = r.memberList(roomId)
	return room, true, nil
}

func (r *MemRoomRepo) ListRooms(_ context.Context) ([]models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]models.Room, 0, len(r.rooms))
	for id, room := range r.rooms {
		room.Members = r.memberList(id)
		res = append(res, room)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt > res[j].CreatedAt })
	return res, nil
}

func (r *MemRoomRepo) ExistsRoom(_ context.Context, roomId string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomId]
	return ok, nil
}

// FailNextAddMember は次のAddMember呼び出しを失敗させます（ロールバックのテスト用）
func (r *MemRoomRepo) FailNextAddMember() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = true
}

func (r *MemRoomRepo) AddMember(_ context.Context, roomId, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return errAddMemberFailed
	}
	set, ok := r.members[roomId]
	if !ok {
		set = make(map[string]struct{})
		r.members[roomId] = set
	}
	set[userId] = struct{}{}
	return nil
}

func (r *MemRoomRepo) RemoveMember(_ context.Context, roomId, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.members[roomId]; ok {
		delete(set, userId)
	}
	return nil
}

func (r *MemRoomRepo) IsMember(_ context.Context, roomId, userId string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.members[roomId]
	if !ok {
		return false, nil
	}
	_, ok = set[userId]
	return ok, nil
}

func (r *MemRoomRepo) RemoveMemberEverywhere(_ context.Context, userId string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := []string{}
	for roomId, set := range r.members {
		if _, ok := set[userId]; ok {
			delete(set, userId)
			removed = append(removed, roomId)
		}
	}
	return removed, nil
}

func (r *MemRoomRepo) memberList(roomId string) []string {
	res := make([]string, 0, len(r.members[roomId]))
	for id := range r.members[roomId] {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

// MemMessageRepo はMessageRepoのインメモリ実装です
// Redis実装と同じ順序特性（Pageは新しい順、Sinceは古い順）を持ちます
type MemMessageRepo struct {
	mu       sync.RWMutex
	messages map[string][]models.Message // roomId -> 古い順
	failNext bool                        // テスト用: 次のAppendを失敗させる
}

func NewMemMessageRepo() *MemMessageRepo {
	return &MemMessageRepo{messages: make(map[string][]models.Message)}
}

// FailNextAppend は次のAppend呼び出しを失敗させます（永続化失敗のテスト用）
func (r *MemMessageRepo) FailNextAppend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = true
}

func (r *MemMessageRepo) Append(_ context.Context, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return errAppendFailed
	}
	r.messages[msg.RoomId] = append(r.messages[msg.RoomId], msg)
	return nil
}

func (r *MemMessageRepo) Page(_ context.Context, roomId string, offset, limit int) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.messages[roomId]
	res := make([]models.Message, 0, limit)
	// 末尾（最新）からoffsetを飛ばして新しい順に詰める
	for i := len(all) - 1 - offset; i >= 0 && len(res) < limit; i-- {
		res = append(res, all[i])
	}
	return res, nil
}

func (r *MemMessageRepo) Since(_ context.Context, roomId string, cursor int64) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := []models.Message{}
	for _, m := range r.messages[roomId] {
		if m.Timestamp > cursor {
			res = append(res, m)
		}
	}
	return res, nil
}

func (r *MemMessageRepo) LastTimestamp(_ context.Context, roomId string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.messages[roomId]
	if len(all) == 0 {
		return 0, nil
	}
	return all[len(all)-1].Timestamp, nil
}

func (r *MemMessageRepo) PurgeSender(_ context.Context, roomId, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.messages[roomId][:0]
	for _, m := range r.messages[roomId] {
		if m.SenderId != userId {
			kept = append(kept, m)
		}
	}
	r.messages[roomId] = kept
	return nil
}
