// Package hub はライブ接続のレジストリとルーム単位のブロードキャストを提供します
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second // 書き込みのタイムアウト
	pongWait       = 60 * time.Second // pongを待つ最大時間
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256 // 送信バッファのメッセージ数
)

// Event はWebSocketで送受信するメッセージの構造
// すべてのイベントはこの形式でやり取りされます
type Event struct {
	Type    string `json:"type"`    // イベントタイプ (例: "receive_message", "user_joined")
	Payload any    `json:"payload"` // イベントのペイロード（型は動的）
}

// Client は認証済みの1つのWebSocket接続を表します
// 送信はバッファ付きチャネル経由で行い、遅いクライアントが
// ブロードキャスト全体を止めないようにします
type Client struct {
	UserId   string // 認証済みユーザーのID
	Username string // 表示名（ハンドシェイク時に解決）

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewClient は新しいClientを作成します
// connはテストではnilでも構いません（WritePumpを起動しない場合）
func NewClient(conn *websocket.Conn, userId, username string) *Client {
	return &Client{
		UserId:   userId,
		Username: username,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}
}

// SendEvent はイベントをこの接続の送信バッファに積みます
// バッファが満杯の場合はメッセージを破棄してfalseを返します
// （遅い・死んでいる接続のためにブロードキャストを止めない）
func (c *Client) SendEvent(ev Event) bool {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("failed to marshal event %q: %v", ev.Type, err)
		return false
	}
	return c.enqueue(b)
}

func (c *Client) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		log.Printf("send buffer full for userId=%s; dropping message", c.UserId)
		return false
	}
}

// Outbox は送信バッファの読み取り側を返します（テスト用）
func (c *Client) Outbox() <-chan []byte {
	return c.send
}

// Close は送信バッファを閉じます
// WritePumpが残りを書き切った後にクローズフレームを送って終了します
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// WritePump は送信バッファのメッセージを接続へ書き込みます
// 接続ごとに1つのgoroutineで実行してください
// pingを定期送信して接続の生存確認を行います
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Closeされた
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
