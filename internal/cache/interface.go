// Package cache 是服務層使用的本地快取抽象。
//
// 實作：
//   - lru.Synced[string, []byte]（NewLRU）
//   - Sharded：以一致性雜湊分散到多個 LRU 分片
//   - Instrumented：記錄 Prometheus 指標的裝飾器
package cache

// Cache 是本地快取介面。
//
// 與 strategy.DataStore 的區別：
//
//	Cache     - 記憶體操作，不會失敗，沒有 context
//	DataStore - 持久化儲存，可能失敗，需要 context
type Cache interface {
	// Get 命中時會更新最近使用順序
	Get(key string) ([]byte, bool)

	// Put 寫入或覆寫；快取已滿時淘汰最久未使用的項目
	Put(key string, value []byte)

	// Remove 返回 key 是否存在
	Remove(key string) bool

	Len() int

	// Keys 依最近使用到最久未使用排序
	Keys() []string
}
