package cache

import (
	"github.com/koopa0/system-design/14-lru-cache/internal/lru"
)

// EvictFunc 在容量淘汰時被呼叫
type EvictFunc func(key string, value []byte)

// NewLRU 建立併發安全的 []byte LRU 快取。
//
// onEvict 可以為 nil。
func NewLRU(capacity int, onEvict EvictFunc) (*lru.Synced[string, []byte], error) {
	var opts []lru.Option[string, []byte]
	if onEvict != nil {
		opts = append(opts, lru.WithEvictCallback[string, []byte](onEvict))
	}
	return lru.NewSynced(capacity, opts...)
}

var _ Cache = (*lru.Synced[string, []byte])(nil)
