// Package idgen はエンティティの識別子を生成します
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID は時刻順にソート可能なULIDを生成します
// メッセージIDに使用します
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// NewUUID はランダムなUUIDを生成します
// ユーザーIDとルームIDに使用します
func NewUUID() string {
	return uuid.New().String()
}
