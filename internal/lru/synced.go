package lru

import "sync"

// Synced 以單一互斥鎖保護 Cache，可供多個 goroutine 共用。
//
// 為何不用 RWMutex？
//
//	Get 命中時會調整淘汰順序，本質上是寫入操作。
//	如果 Get 只拿讀鎖，兩個並行的 Get 會同時改動鏈表。
//	所有方法一律取得同一把 Mutex。
type Synced[K comparable, V any] struct {
	mu    sync.Mutex
	cache *Cache[K, V]
}

// NewSynced 建立併發安全的 LRU 快取。
func NewSynced[K comparable, V any](capacity int, opts ...Option[K, V]) (*Synced[K, V], error) {
	c, err := New(capacity, opts...)
	if err != nil {
		return nil, err
	}
	return &Synced[K, V]{cache: c}, nil
}

// Get 取得 key 的值；命中時會更新淘汰順序。
func (s *Synced[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(key)
}

// Put 寫入 key 的值。
func (s *Synced[K, V]) Put(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Put(key, value)
}

// Peek 取得 key 的值，不影響淘汰順序。
func (s *Synced[K, V]) Peek(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Peek(key)
}

// Contains 檢查 key 是否存在。
func (s *Synced[K, V]) Contains(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Contains(key)
}

// Remove 刪除 key。
func (s *Synced[K, V]) Remove(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(key)
}

// Oldest 返回最久未使用的項目。
func (s *Synced[K, V]) Oldest() (K, V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Oldest()
}

// Keys 返回所有 key（最近到最久）。
func (s *Synced[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Keys()
}

// Len 返回目前的項目數量。
func (s *Synced[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Cap 返回容量（建立後不變，不需要鎖）。
func (s *Synced[K, V]) Cap() int {
	return s.cache.Cap()
}

// Purge 清空快取。
func (s *Synced[K, V]) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}
