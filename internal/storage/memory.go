// Package storage 提供快取背後的持久化儲存。
//
// 實作：
//   - Memory：單機記憶體（測試與開發用）
//   - Redis：共享的遠端 key/value
//   - Postgres：cache_entries 資料表
//
// 所有實作在 key 不存在時返回 apperrors.ErrKeyNotFound，
// 連線類錯誤包裝為 apperrors.ErrBackendUnavailable。
package storage

import (
	"context"
	"sync"

	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// Memory 記憶體儲存。
//
// 存入與取出時都複製 []byte，呼叫端之後修改 slice 不會影響儲存內容。
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory 建立記憶體儲存
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get 取得值
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, apperrors.ErrKeyNotFound
	}
	return clone(value), nil
}

// Set 寫入值
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = clone(value)
	return nil
}

// Delete 刪除值；key 不存在時不報錯
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Len 返回項目數量
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Ping 記憶體儲存永遠可用
func (m *Memory) Ping(context.Context) error {
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
