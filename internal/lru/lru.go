package lru

import (
	"fmt"
	"math"

	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// ErrInvalidCapacity 容量不是正整數
var ErrInvalidCapacity = apperrors.ErrInvalidCapacity

// maxCapacity 受限於 int32 索引
const maxCapacity = math.MaxInt32

// Cache 是固定容量的 LRU 快取。
//
// 時間複雜度：
//   - Get / Put / Peek / Contains / Remove: O(1)
//   - Keys: O(n)
//
// 空間複雜度：O(capacity)
//
// Cache 不是併發安全的。多個 goroutine 共用時請使用 Synced，
// 或由呼叫端以單一互斥鎖保護每次呼叫。
type Cache[K comparable, V any] struct {
	capacity int
	index    map[K]int32
	nodes    []node[K, V]
	free     []int32
	head     int32 // 最近使用
	tail     int32 // 最久未使用
	onEvict  func(key K, value V)
}

// Option 設定 Cache 的選項
type Option[K comparable, V any] func(*Cache[K, V])

// WithEvictCallback 設定淘汰回呼。
//
// 只有容量溢出造成的淘汰會觸發；Remove 與 Purge 不會。
// 回呼在 Put 內同步執行，此時快取狀態已一致，但回呼不可再呼叫同一個快取
// （Synced 的鎖在回呼期間仍被持有）。
func WithEvictCallback[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.onEvict = fn
	}
}

// New 建立容量為 capacity 的 LRU 快取。
//
// capacity <= 0 時返回 ErrInvalidCapacity。
func New[K comparable, V any](capacity int, opts ...Option[K, V]) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity.WithDetails(fmt.Sprintf("got %d", capacity))
	}
	if capacity > maxCapacity {
		return nil, ErrInvalidCapacity.WithDetails(fmt.Sprintf("got %d, max %d", capacity, maxCapacity))
	}

	c := &Cache[K, V]{
		capacity: capacity,
		index:    make(map[K]int32, capacity),
		nodes:    make([]node[K, V], 0, capacity),
		head:     nilIndex,
		tail:     nilIndex,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Get 取得 key 的值。
//
// 注意：命中時會將 key 移到最近使用的位置（修改淘汰順序）。
// 未命中時返回零值與 false，不產生任何副作用。
func (c *Cache[K, V]) Get(key K) (V, bool) {
	i, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}

	c.moveToFront(i)
	return c.nodes[i].value, true
}

// Put 寫入 key 的值。
//
// 行為：
//  1. key 已存在：更新值並移到最近使用的位置，數量不變
//  2. key 不存在且已滿：先淘汰最久未使用的 key，再插入到頭部
//  3. key 不存在且未滿：直接插入到頭部
func (c *Cache[K, V]) Put(key K, value V) {
	if i, ok := c.index[key]; ok {
		c.nodes[i].value = value
		c.moveToFront(i)
		return
	}

	if len(c.index) == c.capacity {
		c.evict()
	}

	i := c.alloc(key, value)
	c.index[key] = i
	c.pushFront(i)
}

// evict 淘汰最久未使用的項目。
func (c *Cache[K, V]) evict() {
	i := c.tail
	if i == nilIndex {
		return
	}

	key, value := c.nodes[i].key, c.nodes[i].value
	c.unlink(i)
	delete(c.index, key)
	c.release(i)

	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}

// Peek 取得 key 的值，不影響淘汰順序。
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	i, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return c.nodes[i].value, true
}

// Contains 檢查 key 是否存在，不影響淘汰順序。
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.index[key]
	return ok
}

// Remove 刪除 key，返回 key 是否存在。
//
// 刪除不存在的 key 不會報錯（冪等操作）。
func (c *Cache[K, V]) Remove(key K) bool {
	i, ok := c.index[key]
	if !ok {
		return false
	}

	c.unlink(i)
	delete(c.index, key)
	c.release(i)
	return true
}

// Oldest 返回最久未使用的項目，不影響淘汰順序。
func (c *Cache[K, V]) Oldest() (K, V, bool) {
	if c.tail == nilIndex {
		var (
			zeroK K
			zeroV V
		)
		return zeroK, zeroV, false
	}

	n := &c.nodes[c.tail]
	return n.key, n.value, true
}

// Keys 返回所有 key，從最近使用到最久未使用。
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, len(c.index))
	for i := c.head; i != nilIndex; i = c.nodes[i].next {
		keys = append(keys, c.nodes[i].key)
	}
	return keys
}

// Len 返回目前的項目數量。
func (c *Cache[K, V]) Len() int {
	return len(c.index)
}

// Cap 返回容量。
func (c *Cache[K, V]) Cap() int {
	return c.capacity
}

// Purge 清空快取，不觸發淘汰回呼。arena 的底層陣列會保留重用。
func (c *Cache[K, V]) Purge() {
	clear(c.index)
	clear(c.nodes)
	c.nodes = c.nodes[:0]
	c.free = c.free[:0]
	c.head = nilIndex
	c.tail = nilIndex
}
