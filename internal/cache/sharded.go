package cache

import (
	"fmt"
	"strconv"

	"github.com/koopa0/system-design/14-lru-cache/pkg/consistent"
	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// Sharded 把 key 分散到多個本地分片。
//
// 架構：
//
//	Client → Sharded → consistent.Ring → shard-0 ... shard-(N-1)
//
// 每個分片各有一把鎖，熱點不同的 key 不會互相阻塞。
// 淘汰順序只在分片內保證：整體不是嚴格的 LRU，
// 總容量為各分片容量之和。
type Sharded struct {
	names  []string
	shards map[string]Cache
	ring   *consistent.Ring
}

// Factory 建立單一分片
type Factory func(name string) (Cache, error)

// NewSharded 建立 n 個分片（shard-0 .. shard-(n-1)）。
//
// replicas 是每個分片的虛擬節點數，<= 0 時使用 consistent.DefaultReplicas。
func NewSharded(n, replicas int, factory Factory) (*Sharded, error) {
	if n <= 0 {
		return nil, apperrors.ErrInvalidConfig.WithDetails(fmt.Sprintf("shard count must be positive, got %d", n))
	}

	s := &Sharded{
		names:  make([]string, 0, n),
		shards: make(map[string]Cache, n),
		ring:   consistent.New(replicas, nil),
	}

	for i := 0; i < n; i++ {
		name := "shard-" + strconv.Itoa(i)
		shard, err := factory(name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		s.names = append(s.names, name)
		s.shards[name] = shard
	}
	s.ring.Add(s.names...)

	return s, nil
}

// shardFor 分片集合建立後不再改變，不需要額外的鎖
func (s *Sharded) shardFor(key string) Cache {
	return s.shards[s.ring.Get(key)]
}

// Get 取得快取值
func (s *Sharded) Get(key string) ([]byte, bool) {
	return s.shardFor(key).Get(key)
}

// Put 寫入快取值
func (s *Sharded) Put(key string, value []byte) {
	s.shardFor(key).Put(key, value)
}

// Remove 刪除快取值
func (s *Sharded) Remove(key string) bool {
	return s.shardFor(key).Remove(key)
}

// Len 返回所有分片的項目總數
func (s *Sharded) Len() int {
	total := 0
	for _, name := range s.names {
		total += s.shards[name].Len()
	}
	return total
}

// Keys 依分片順序串接各分片的 key（分片內為最近使用到最久未使用）
func (s *Sharded) Keys() []string {
	var keys []string
	for _, name := range s.names {
		keys = append(keys, s.shards[name].Keys()...)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys
}

// ShardOf 返回 key 所屬的分片名稱
func (s *Sharded) ShardOf(key string) string {
	return s.ring.Get(key)
}

// ShardStats 單一分片的統計
type ShardStats struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Shards 依分片順序返回統計資訊
func (s *Sharded) Shards() []ShardStats {
	stats := make([]ShardStats, 0, len(s.names))
	for _, name := range s.names {
		stats = append(stats, ShardStats{
			Name: name,
			Size: s.shards[name].Len(),
		})
	}
	return stats
}
