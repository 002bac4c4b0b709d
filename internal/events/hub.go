// Package events 以 WebSocket 推送快取淘汰事件。
//
// 用途：觀察哪些 key 因容量不足被淘汰，用來調整容量或分片數。
//
// 設計：
//   - Hub 模式：集中管理所有連線
//   - Publish 不阻塞：淘汰回呼在快取鎖內執行，不能等待網路
//   - Ping/Pong 心跳：54 秒 ping、60 秒讀取超時
//   - 緩衝 channel：慢客戶端的訊息直接丟棄，不拖累其他連線
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	queueSize      = 1024
	clientSendSize = 256
)

// Event 淘汰事件
type Event struct {
	Key string    `json:"key"`
	At  time.Time `json:"at"`
}

// Hub 淘汰事件的 WebSocket 廣播中心
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	queue   chan Event
	dropped atomic.Int64

	mu      sync.RWMutex
	clients map[*client]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewHub 建立並啟動 Hub
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			// 唯讀的監控串流，不檢查來源
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		queue:   make(chan Event, queueSize),
		clients: make(map[*client]struct{}),
		stopCh:  make(chan struct{}),
	}

	h.wg.Add(1)
	go h.run()

	return h
}

// Publish 送出一個淘汰事件；佇列已滿時丟棄。
func (h *Hub) Publish(key string) {
	select {
	case h.queue <- Event{Key: key, At: time.Now()}:
	default:
		h.dropped.Add(1)
	}
}

// OnEvict 可直接作為快取的淘汰回呼
func (h *Hub) OnEvict(key string, _ []byte) {
	h.Publish(key)
}

// Dropped 返回因佇列已滿而丟棄的事件數
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ClientCount 返回目前的連線數
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS 把 HTTP 請求升級為 WebSocket 並訂閱淘汰事件
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.stopCh:
		http.Error(w, "event stream stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendSize),
	}
	if !h.register(c) {
		// 升級期間 Hub 已停止
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream stopped"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	h.logger.Debug("eviction subscriber connected", "remote", r.RemoteAddr)
}

// register 在鎖內再檢查一次 stopCh：Stop 先關閉 stopCh 再持鎖清空連線，
// 兩者之間註冊的連線不會被遺漏。Hub 已停止時返回 false。
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.stopCh:
		return false
	default:
	}

	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.closeSend()
	}
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case ev := <-h.queue:
			message, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal eviction event failed", "error", err)
				continue
			}
			h.broadcast(message)
		case <-h.stopCh:
			return
		}
	}
}

func (h *Hub) broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			h.dropped.Add(1)
		}
	}
}

// Stop 停止廣播並關閉所有連線。可重複呼叫。
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.wg.Wait()

		h.mu.Lock()
		for c := range h.clients {
			c.closeSend()
			delete(h.clients, c)
		}
		h.mu.Unlock()
	})
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump 只處理控制訊息（pong、close）；客戶端送來的資料一律忽略
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
