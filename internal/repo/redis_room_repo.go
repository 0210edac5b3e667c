package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/realtime-chat/api-server/internal/models"
	"github.com/redis/go-redis/v9"
)

type RedisRoomRepo struct{ rdb *redis.Client }

func NewRedisRoomRepo(rdb *redis.Client) *RedisRoomRepo {
	return &RedisRoomRepo{rdb: rdb}
}

func roomKey(id string) string {
	return fmt.Sprintf("rooms:%s", id)
}
func membersKey(id string) string {
	return fmt.Sprintf("rooms:%s:members", id)
}

const (
	roomIndexKey = "rooms:index" // 全ルームIDのset
	roomNamesKey = "rooms:names" // ルーム名 -> ルームID のhash（名前のユニーク性を保証）
)

// storedRoom はRedisに保存するルーム情報です
// メンバー集合は別キー（set）で管理するためここには含めません
type storedRoom struct {
	RoomId      string `json:"roomId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
	CreatedAt   int64  `json:"createdAt"`
}

func (rr *RedisRoomRepo) CreateRoom(ctx context.Context, room models.Room) error {
	// 名前の予約がユニーク性のゲート
	ok, err := rr.rdb.HSetNX(ctx, roomNamesKey, room.Name, room.RoomId).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateRoomName
	}

	b, err := json.Marshal(storedRoom{
		RoomId:      room.RoomId,
		Name:        room.Name,
		Description: room.Description,
		CreatedBy:   room.CreatedBy,
		CreatedAt:   room.CreatedAt,
	})
	if err != nil {
		return err
	}

	pipe := rr.rdb.TxPipeline()
	pipe.Set(ctx, roomKey(room.RoomId), b, 0)
	pipe.SAdd(ctx, roomIndexKey, room.RoomId)
	_, err = pipe.Exec(ctx)
	if err != nil {
		// 予約した名前を解放してロールバック
		_ = rr.rdb.HDel(ctx, roomNamesKey, room.Name).Err()
	}
	return err
}

func (rr *RedisRoomRepo) DeleteRoom(ctx context.Context, roomId string) error {
	val, err := rr.rdb.Get(ctx, roomKey(roomId)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	var sr storedRoom
	if err := json.Unmarshal(val, &sr); err != nil {
		return err
	}

	pipe := rr.rdb.TxPipeline()
	pipe.Del(ctx, roomKey(roomId))
	pipe.Del(ctx, membersKey(roomId))
	pipe.SRem(ctx, roomIndexKey, roomId)
	pipe.HDel(ctx, roomNamesKey, sr.Name) // 名前の予約を解放
	_, err = pipe.Exec(ctx)
	return err
}

func (rr *RedisRoomRepo) GetRoom(ctx context.Context, roomId string) (models.Room, bool, error) {
	val, err := rr.rdb.Get(ctx, roomKey(roomId)).Bytes()
	if err == redis.Nil { // データがない
		return models.Room{}, false, nil
	}
	if err != nil {
		return models.Room{}, false, err
	}
	var sr storedRoom
	if err := json.Unmarshal(val, &sr); err != nil {
		return models.Room{}, false, err
	}
	members, err := rr.rdb.SMembers(ctx, membersKey(roomId)).Result()
	if err != nil {
		return models.Room{}, false, err
	}
	return models.Room{
		RoomId:      sr.RoomId,
		Name:        sr.Name,
		Description: sr.Description,
		Members:     members,
		CreatedBy:   sr.CreatedBy,
		CreatedAt:   sr.CreatedAt,
	}, true, nil
}

func (rr *RedisRoomRepo) ListRooms(ctx context.Context) ([]models.Room, error) {
	ids, err := rr.rdb.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}
	vals, err := rr.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	// メンバー集合はパイプラインで一括取得
	pipe := rr.rdb.Pipeline()
	memberCmds := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		memberCmds[i] = pipe.SMembers(ctx, membersKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	res := make([]models.Room, 0, len(ids))
	for i, val := range vals {
		if val == nil {
			continue
		}
		s, ok := val.(string)
		if !ok {
			continue
		}
		var sr storedRoom
		if json.Unmarshal([]byte(s), &sr) != nil {
			continue
		}
		members, _ := memberCmds[i].Result()
		if members == nil {
			members = []string{}
		}
		res = append(res, models.Room{
			RoomId:      sr.RoomId,
			Name:        sr.Name,
			Description: sr.Description,
			Members:     members,
			CreatedBy:   sr.CreatedBy,
			CreatedAt:   sr.CreatedAt,
		})
	}

	// 新しい順に並べる
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt > res[j].CreatedAt })
	return res, nil
}

func (rr *RedisRoomRepo) ExistsRoom(ctx context.Context, roomId string) (bool, error) {
	n, err := rr.rdb.Exists(ctx, roomKey(roomId)).Result()
	return n == 1, err
}

func (rr *RedisRoomRepo) AddMember(ctx context.Context, roomId, userId string) error {
	// SADDなので重複追加はそのまま成功扱い
	return rr.rdb.SAdd(ctx, membersKey(roomId), userId).Err()
}

func (rr *RedisRoomRepo) RemoveMember(ctx context.Context, roomId, userId string) error {
	return rr.rdb.SRem(ctx, membersKey(roomId), userId).Err()
}

func (rr *RedisRoomRepo) IsMember(ctx context.Context, roomId, userId string) (bool, error) {
	return rr.rdb.SIsMember(ctx, membersKey(roomId), userId).Result()
}

func (rr *RedisRoomRepo) RemoveMemberEverywhere(ctx context.Context, userId string) ([]string, error) {
	ids, err := rr.rdb.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	pipe := rr.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.SRem(ctx, membersKey(id), userId)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(ids))
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			removed = append(removed, ids[i])
		}
	}
	return removed, nil
}
