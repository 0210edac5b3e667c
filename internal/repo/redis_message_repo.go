package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/realtime-chat/api-server/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisMessageRepo はルームごとのメッセージログをsorted setで保持します
// スコアはサーバーが割り当てたタイムスタンプ（Unixミリ秒）です
type RedisMessageRepo struct{ rdb *redis.Client }

func NewRedisMessageRepo(rdb *redis.Client) *RedisMessageRepo {
	return &RedisMessageRepo{rdb: rdb}
}

func messagesKey(roomId string) string {
	return fmt.Sprintf("rooms:%s:messages", roomId)
}

func (mr *RedisMessageRepo) Append(ctx context.Context, msg models.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return mr.rdb.ZAdd(ctx, messagesKey(msg.RoomId), redis.Z{
		Score:  float64(msg.Timestamp),
		Member: b,
	}).Err()
}

// Page はoffsetから最大limit件を新しい順で返します
func (mr *RedisMessageRepo) Page(ctx context.Context, roomId string, offset, limit int) ([]models.Message, error) {
	stop := int64(offset + limit - 1)
	vals, err := mr.rdb.ZRevRange(ctx, messagesKey(roomId), int64(offset), stop).Result()
	if err != nil {
		return nil, err
	}
	return decodeMessages(vals)
}

// Since はcursorより厳密に後のメッセージを古い順で返します
func (mr *RedisMessageRepo) Since(ctx context.Context, roomId string, cursor int64) ([]models.Message, error) {
	vals, err := mr.rdb.ZRangeByScore(ctx, messagesKey(roomId), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(cursor, 10), // 排他的下限
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	return decodeMessages(vals)
}

func (mr *RedisMessageRepo) LastTimestamp(ctx context.Context, roomId string) (int64, error) {
	zs, err := mr.rdb.ZRevRangeWithScores(ctx, messagesKey(roomId), 0, 0).Result()
	if err != nil {
		return 0, err
	}
	if len(zs) == 0 {
		return 0, nil
	}
	return int64(zs[0].Score), nil
}

// PurgeSender はLuaスクリプトでアトミックに対象ユーザーのメッセージを削除します
func (mr *RedisMessageRepo) PurgeSender(ctx context.Context, roomId, userId string) error {
	script := `
		local key = KEYS[1]
		local sender = ARGV[1]

		local members = redis.call('ZRANGE', key, 0, -1)
		local removed = 0
		for _, m in ipairs(members) do
			local ok, msg = pcall(cjson.decode, m)
			if ok and msg['senderId'] == sender then
				redis.call('ZREM', key, m)
				removed = removed + 1
			end
		end

		return removed
	`

	return mr.rdb.Eval(ctx, script, []string{messagesKey(roomId)}, userId).Err()
}

func decodeMessages(vals []string) ([]models.Message, error) {
	res := make([]models.Message, 0, len(vals))
	for _, v := range vals {
		var m models.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		res = append(res, m)
	}
	return res, nil
}
