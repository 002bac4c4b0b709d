package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-lru-cache/internal/cache"
	"github.com/koopa0/system-design/14-lru-cache/internal/events"
	"github.com/koopa0/system-design/14-lru-cache/internal/handler"
	"github.com/koopa0/system-design/14-lru-cache/internal/metrics"
	"github.com/koopa0/system-design/14-lru-cache/internal/storage"
	"github.com/koopa0/system-design/14-lru-cache/internal/strategy"
	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
	"github.com/koopa0/system-design/14-lru-cache/pkg/logger"
)

// recordingBus 記錄發佈的失效訊息
type recordingBus struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (b *recordingBus) Publish(_ context.Context, key, op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, op+":"+key)
	return b.err
}

// stubStrategy 每個操作都返回 err 或 panic
type stubStrategy struct {
	err     error
	doPanic bool
}

func (s stubStrategy) Get(context.Context, string) ([]byte, error) {
	if s.doPanic {
		panic("boom")
	}
	return nil, s.err
}
func (s stubStrategy) Set(context.Context, string, []byte) error { return s.err }
func (s stubStrategy) Delete(context.Context, string) error      { return s.err }

// failingPinger 健康檢查永遠失敗
type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return apperrors.ErrBackendUnavailable }

type testEnv struct {
	routes http.Handler
	cache  cache.Cache
	store  *storage.Memory
	bus    *recordingBus
}

func setup(t *testing.T, capacity int) *testEnv {
	t.Helper()

	c, err := cache.NewLRU(capacity, nil)
	require.NoError(t, err)
	store := storage.NewMemory()
	bus := &recordingBus{}

	h := handler.New(handler.Deps{
		Strategy: strategy.NewCacheAside(c, store),
		Cache:    c,
		Capacity: capacity,
		Store:    store,
		Bus:      bus,
		Timeout:  time.Second,
		Logger:   logger.Discard(),
	})

	return &testEnv{routes: h.Routes(), cache: c, store: store, bus: bus}
}

func do(t *testing.T, routes http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandler_PutGetDelete(t *testing.T) {
	env := setup(t, 10)

	rec := do(t, env.routes, http.MethodPut, "/api/v1/cache/user:1", []byte("alice"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, env.routes, http.MethodGet, "/api/v1/cache/user:1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))

	rec = do(t, env.routes, http.MethodDelete, "/api/v1/cache/user:1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, env.routes, http.MethodGet, "/api/v1/cache/user:1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.ErrCodeNotFound, decodeError(t, rec)["code"])

	assert.Equal(t, []string{"set:user:1", "delete:user:1"}, env.bus.sent)
}

func TestHandler_List(t *testing.T) {
	env := setup(t, 2)

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, env.store.Set(context.Background(), key, []byte(key)))
	}
	// 讀取會經由 cache-aside 填入快取；容量 2，a 被淘汰
	for _, key := range []string{"a", "b", "c"} {
		rec := do(t, env.routes, http.MethodGet, "/api/v1/cache/"+key, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, env.routes, http.MethodGet, "/api/v1/cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Keys []string `json:"keys"`
		Len  int      `json:"len"`
		Cap  int      `json:"cap"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"c", "b"}, body.Keys)
	assert.Equal(t, 2, body.Len)
	assert.Equal(t, 2, body.Cap)
}

func TestHandler_ListSharded(t *testing.T) {
	s, err := cache.NewSharded(2, 0, func(string) (cache.Cache, error) {
		return cache.NewLRU(4, nil)
	})
	require.NoError(t, err)
	s.Put("k", []byte("v"))

	h := handler.New(handler.Deps{
		Strategy: strategy.NewCacheAside(s, storage.NewMemory()),
		Cache:    s,
		Capacity: 8,
		Logger:   logger.Discard(),
	})

	rec := do(t, h.Routes(), http.MethodGet, "/api/v1/cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"shards":[{"name":"shard-0"`)
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.ErrKeyNotFound, http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"invalid", apperrors.ErrInvalidKey, http.StatusBadRequest, apperrors.ErrCodeInvalidInput},
		{"unavailable", apperrors.ErrBackendUnavailable.WithDetails("redis get"), http.StatusServiceUnavailable, apperrors.ErrCodeUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, apperrors.ErrCodeTimeout},
		{"internal", assert.AnError, http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.New(handler.Deps{
				Strategy: stubStrategy{err: tt.err},
				Logger:   logger.Discard(),
			})

			rec := do(t, h.Routes(), http.MethodGet, "/api/v1/cache/k", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body["code"])
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["error"], "internal details are hidden")
			}
		})
	}
}

func TestHandler_KeyTooLong(t *testing.T) {
	env := setup(t, 10)

	rec := do(t, env.routes, http.MethodGet, "/api/v1/cache/"+strings.Repeat("k", handler.MaxKeyLength+1), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, decodeError(t, rec)["code"])
}

func TestHandler_ValueTooLarge(t *testing.T) {
	c, err := cache.NewLRU(4, nil)
	require.NoError(t, err)
	h := handler.New(handler.Deps{
		Strategy:      strategy.NewCacheAside(c, storage.NewMemory()),
		Cache:         c,
		MaxValueBytes: 8,
		Logger:        logger.Discard(),
	})

	rec := do(t, h.Routes(), http.MethodPut, "/api/v1/cache/k", []byte("0123456789"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// TestHandler_PublishFailureIgnored 失效訊息發佈失敗不影響寫入結果
func TestHandler_PublishFailureIgnored(t *testing.T) {
	env := setup(t, 10)
	env.bus.err = apperrors.ErrBackendUnavailable

	rec := do(t, env.routes, http.MethodPut, "/api/v1/cache/k", []byte("v"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := env.store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestHandler_Health(t *testing.T) {
	env := setup(t, 10)
	rec := do(t, env.routes, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	h := handler.New(handler.Deps{
		Strategy: stubStrategy{},
		Store:    failingPinger{},
		Logger:   logger.Discard(),
	})
	rec = do(t, h.Routes(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_Middleware(t *testing.T) {
	var logBuffer bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logBuffer, nil))

	c, err := cache.NewLRU(4, nil)
	require.NoError(t, err)
	h := handler.New(handler.Deps{
		Strategy: strategy.NewCacheAside(c, storage.NewMemory()),
		Cache:    c,
		Logger:   log,
	})
	routes := h.Routes()

	t.Run("generates request id", func(t *testing.T) {
		rec := do(t, routes, http.MethodGet, "/api/v1/cache", nil)
		assert.Len(t, rec.Header().Get(handler.RequestIDHeader), 36)
	})

	t.Run("echoes request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cache", nil)
		req.Header.Set(handler.RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get(handler.RequestIDHeader))
		assert.Contains(t, logBuffer.String(), `"path":"/api/v1/cache"`)
		assert.Contains(t, logBuffer.String(), `"status":200`)
	})

	t.Run("recovers panic", func(t *testing.T) {
		h := handler.New(handler.Deps{
			Strategy: stubStrategy{doPanic: true},
			Logger:   log,
		})

		var rec *httptest.ResponseRecorder
		assert.NotPanics(t, func() {
			rec = do(t, h.Routes(), http.MethodGet, "/api/v1/cache/k", nil)
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, logBuffer.String(), "panic recovered")
	})
}

func TestHandler_MetricsAndEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "lru")
	hub := events.NewHub(logger.Discard())
	defer hub.Stop()

	inner, err := cache.NewLRU(1, cache.EvictCounter(m, hub.OnEvict))
	require.NoError(t, err)
	c := cache.NewInstrumented(inner, m)

	h := handler.New(handler.Deps{
		Strategy: strategy.NewWriteThrough(c, storage.NewMemory()),
		Cache:    c,
		Capacity: 1,
		Events:   http.HandlerFunc(hub.ServeWS),
		Metrics:  metrics.Handler(reg),
		Logger:   logger.Discard(),
	})
	server := httptest.NewServer(h.Routes())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/evictions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	for _, key := range []string{"a", "b"} {
		req, err := http.NewRequest(http.MethodPut, server.URL+"/api/v1/cache/"+key, strings.NewReader(key))
		require.NoError(t, err)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = res.Body.Close()
		require.Equal(t, http.StatusNoContent, res.StatusCode)
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(message), `"key":"a"`)

	res, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "lru_evictions_total 1")
	assert.Contains(t, buf.String(), "lru_puts_total 2")
}
