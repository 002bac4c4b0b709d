// Package handler 提供快取服務的 HTTP API。
//
// 路由（Go 1.22+ ServeMux 方法與路徑參數）：
//
//	GET    /api/v1/cache/{key}   讀取（經由快取策略）
//	PUT    /api/v1/cache/{key}   寫入，body 為原始位元組
//	DELETE /api/v1/cache/{key}   刪除
//	GET    /api/v1/cache         目前的 key（最近使用 → 最久未使用）、數量、容量
//	GET    /health               後端健康檢查
//	GET    /metrics              Prometheus 指標
//	GET    /ws/evictions         淘汰事件 WebSocket 串流
//
// 錯誤回應統一為 {"code": "...", "error": "..."}。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/koopa0/system-design/14-lru-cache/internal/cache"
	"github.com/koopa0/system-design/14-lru-cache/internal/invalidation"
	"github.com/koopa0/system-design/14-lru-cache/internal/strategy"
	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// MaxKeyLength key 的最大長度（位元組）
const MaxKeyLength = 250

// Publisher 通知其他實例 key 已變更
type Publisher interface {
	Publish(ctx context.Context, key, op string) error
}

// Pinger 後端健康檢查
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps 是 Handler 的依賴。Bus、Events、Metrics 可以為 nil。
type Deps struct {
	Strategy strategy.Strategy
	Cache    cache.Cache
	Capacity int
	Store    Pinger

	Bus     Publisher
	Events  http.Handler
	Metrics http.Handler

	// Timeout 每個後端操作的逾時，0 表示不限制
	Timeout       time.Duration
	MaxValueBytes int64
	Logger        *slog.Logger
}

// Handler HTTP 處理器
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// New 建立 Handler
func New(deps Deps) *Handler {
	if deps.MaxValueBytes <= 0 {
		deps.MaxValueBytes = 1 << 20
	}
	return &Handler{
		deps:   deps,
		logger: deps.Logger,
	}
}

// Routes 設置路由。
//
// 中間件鏈：requestID → recovery → logRequest → 業務處理。
// WebSocket 路由不經過 logRequest：連線存續期間不應被計為一次請求。
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/cache/{key}", h.withMiddleware(h.get))
	mux.HandleFunc("PUT /api/v1/cache/{key}", h.withMiddleware(h.put))
	mux.HandleFunc("DELETE /api/v1/cache/{key}", h.withMiddleware(h.remove))
	mux.HandleFunc("GET /api/v1/cache", h.withMiddleware(h.list))

	mux.HandleFunc("GET /health", h.health)

	if h.deps.Metrics != nil {
		mux.Handle("GET /metrics", h.deps.Metrics)
	}
	if h.deps.Events != nil {
		mux.Handle("GET /ws/evictions", h.requestID(h.recovery(h.deps.Events.ServeHTTP)))
	}

	return mux
}

func (h *Handler) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return h.requestID(h.recovery(h.logRequest(next)))
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.deps.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.deps.Timeout)
}

// key 取出並驗證路徑參數
func (h *Handler) key(r *http.Request) (string, error) {
	key := r.PathValue("key")
	if key == "" {
		return "", apperrors.ErrInvalidKey.WithDetails("key is empty")
	}
	if len(key) > MaxKeyLength {
		return "", apperrors.ErrInvalidKey.WithDetails("key exceeds 250 bytes")
	}
	return key, nil
}

// get 讀取值
//
// API: GET /api/v1/cache/{key}
// Response: 200，body 為原始值（application/octet-stream）
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	key, err := h.key(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	value, err := h.deps.Strategy.Get(ctx, key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

// put 寫入值
//
// API: PUT /api/v1/cache/{key}
// Body: 原始位元組，最大 MaxValueBytes
// Response: 204
func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	key, err := h.key(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.deps.MaxValueBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Code:  apperrors.ErrCodeInvalidInput,
				Error: "value too large",
			})
			return
		}
		h.writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "read body"))
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	if err := h.deps.Strategy.Set(ctx, key, value); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.publish(ctx, key, invalidation.OpSet)

	w.WriteHeader(http.StatusNoContent)
}

// remove 刪除值（冪等）
//
// API: DELETE /api/v1/cache/{key}
// Response: 204
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	key, err := h.key(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	if err := h.deps.Strategy.Delete(ctx, key); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.publish(ctx, key, invalidation.OpDelete)

	w.WriteHeader(http.StatusNoContent)
}

// publish 失敗只記錄日誌：本地寫入已完成，其他實例最多短暫讀到舊值
func (h *Handler) publish(ctx context.Context, key, op string) {
	if h.deps.Bus == nil {
		return
	}
	if err := h.deps.Bus.Publish(ctx, key, op); err != nil {
		h.logger.WarnContext(ctx, "publish invalidation failed", "key", key, "op", op, "error", err)
	}
}

type listResponse struct {
	Keys   []string           `json:"keys"`
	Len    int                `json:"len"`
	Cap    int                `json:"cap"`
	Shards []cache.ShardStats `json:"shards,omitempty"`
}

// list 列出本地快取內容（不影響淘汰順序）
//
// API: GET /api/v1/cache
func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	resp := listResponse{
		Keys: h.deps.Cache.Keys(),
		Len:  h.deps.Cache.Len(),
		Cap:  h.deps.Capacity,
	}
	if s, ok := h.deps.Cache.(interface{ Shards() []cache.ShardStats }); ok {
		resp.Shards = s.Shards()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// health 健康檢查
//
// API: GET /health
// Response: 200 {"status":"ok"}；後端不可用時 503
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.deps.Store.Ping(ctx); err != nil {
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// writeError 依錯誤碼決定狀態碼
//
//	NOT_FOUND           → 404
//	INVALID_INPUT       → 400
//	SERVICE_UNAVAILABLE → 503
//	TIMEOUT             → 504
//	其他                → 500（不回傳內部細節）
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperrors.Wrap(err, apperrors.ErrCodeTimeout, "backend timeout")
	}

	code := apperrors.CodeOf(err)
	body := errorBody{Code: code, Error: err.Error()}

	var status int
	switch code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
		body.Error = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}
