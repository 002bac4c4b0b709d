package cache

import (
	"github.com/koopa0/system-design/14-lru-cache/internal/metrics"
)

// Instrumented 為 Cache 加上指標記錄。
//
// 淘汰次數不在這裡計算：淘汰發生在內部快取的 Put 中，
// 由 EvictCounter 包裝淘汰回呼來記錄。
type Instrumented struct {
	next    Cache
	metrics *metrics.Metrics
}

// NewInstrumented 建立帶指標的快取
func NewInstrumented(next Cache, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

// Get 取得快取值
func (c *Instrumented) Get(key string) ([]byte, bool) {
	value, ok := c.next.Get(key)
	c.metrics.RecordLookup(ok)
	return value, ok
}

// Put 寫入快取值
func (c *Instrumented) Put(key string, value []byte) {
	c.next.Put(key, value)
	c.metrics.Puts.Inc()
	c.metrics.Entries.Set(float64(c.next.Len()))
}

// Remove 刪除快取值
func (c *Instrumented) Remove(key string) bool {
	ok := c.next.Remove(key)
	if ok {
		c.metrics.Removals.Inc()
		c.metrics.Entries.Set(float64(c.next.Len()))
	}
	return ok
}

func (c *Instrumented) Len() int { return c.next.Len() }

func (c *Instrumented) Keys() []string { return c.next.Keys() }

// EvictCounter 包裝淘汰回呼，每次淘汰遞增 evictions_total。
//
// next 可以為 nil。
func EvictCounter(m *metrics.Metrics, next EvictFunc) EvictFunc {
	return func(key string, value []byte) {
		m.Evictions.Inc()
		if next != nil {
			next(key, value)
		}
	}
}
