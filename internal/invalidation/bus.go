// Package invalidation 透過 NATS 在多個服務實例之間同步快取失效。
//
// 問題：
//
//	每個實例都有自己的本地 LRU。實例 A 更新了 key，
//	實例 B 的 LRU 中仍是舊值，直到被淘汰為止。
//
// 方案：
//
//	寫入成功後發佈 {"origin","key","op"} 到共用 subject，
//	其他實例收到後從本地快取移除該 key，下次讀取時從後端重新載入。
//
// 使用 NATS core pub/sub（at-most-once）：訊息遺失時最壞情況是短暫讀到舊值，
// 不需要 JetStream 的持久化。
package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/koopa0/system-design/14-lru-cache/internal/metrics"
)

// DefaultSubject 預設的失效訊息 subject
const DefaultSubject = "lru.invalidate"

// 操作類型
const (
	OpSet    = "set"
	OpDelete = "delete"
)

// Message 失效訊息
type Message struct {
	Origin    string    `json:"origin"`
	Key       string    `json:"key"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"ts"`
}

// Conn 是 Bus 需要的 NATS 連線操作，*nats.Conn 實作此介面
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
}

// Remover 是本地快取的刪除操作
type Remover interface {
	Remove(key string) bool
}

// Bus 跨實例失效匯流排
type Bus struct {
	conn    Conn
	subject string
	origin  string
	target  Remover
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Connect 連線到 NATS。
//
// 選項：無限重連、每秒重試、20 秒心跳。
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("lru-cache"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

// NewBus 訂閱 subject，收到其他實例的訊息時從 target 移除 key。
//
// m 可以為 nil。
func NewBus(conn Conn, subject string, target Remover, logger *slog.Logger, m *metrics.Metrics) (*Bus, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	b := &Bus{
		conn:    conn,
		subject: subject,
		origin:  uuid.NewString(),
		target:  target,
		logger:  logger,
		metrics: m,
	}

	if _, err := conn.Subscribe(subject, b.handle); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	return b, nil
}

// Origin 返回本實例的 ID
func (b *Bus) Origin() string {
	return b.origin
}

// Publish 通知其他實例 key 已變更
func (b *Bus) Publish(ctx context.Context, key, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(Message{
		Origin:    b.origin,
		Key:       key,
		Op:        op,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}

	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (b *Bus) handle(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		b.logger.Warn("invalid invalidation message", "subject", msg.Subject, "error", err)
		return
	}

	// 自己發出的訊息：本地快取已由策略層處理
	if m.Origin == b.origin {
		return
	}

	removed := b.target.Remove(m.Key)
	if b.metrics != nil {
		b.metrics.InvalidationsReceived.Inc()
	}
	b.logger.Debug("remote invalidation",
		"key", m.Key,
		"op", m.Op,
		"origin", m.Origin,
		"removed", removed,
	)
}

// Close 送出尚未發送的訊息並關閉連線
func (b *Bus) Close() error {
	return b.conn.Drain()
}
