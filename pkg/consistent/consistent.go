// Package consistent 實作一致性雜湊環。
//
// 在本專案中用來把 key 分配到多個本地 LRU 分片：
//
//	hash(key) % N 的問題：分片數改變時，幾乎所有 key 都換了位置
//	一致性雜湊：分片增減時，平均只有 1/N 的 key 需要移動
package consistent

import (
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Hash 是雜湊函數。預設使用 xxhash（64 位元，分布均勻且快速）。
type Hash func(data []byte) uint64

// DefaultReplicas 每個實體節點的預設虛擬節點數
const DefaultReplicas = 150

// Ring 是一致性雜湊環。
//
// 資料結構：
//   - keys: 已排序的虛擬節點雜湊值（二分搜尋）
//   - owners: 雜湊值 -> 實體節點名稱
//   - members: 實體節點集合
//
// 虛擬節點命名：node-0, node-1, ..., node-(replicas-1)
type Ring struct {
	hash     Hash
	replicas int
	keys     []uint64
	owners   map[uint64]string
	members  map[string]struct{}
	mu       sync.RWMutex
}

// New 建立新的一致性雜湊環。
//
// replicas <= 0 時使用 DefaultReplicas；fn 為 nil 時使用 xxhash.Sum64。
func New(replicas int, fn Hash) *Ring {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	if fn == nil {
		fn = xxhash.Sum64
	}

	return &Ring{
		hash:     fn,
		replicas: replicas,
		owners:   make(map[uint64]string),
		members:  make(map[string]struct{}),
	}
}

// Add 新增節點到雜湊環。已存在的節點會被忽略。
func (r *Ring) Add(nodes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, node := range nodes {
		if _, ok := r.members[node]; ok {
			continue
		}
		r.members[node] = struct{}{}

		for i := 0; i < r.replicas; i++ {
			h := r.hash([]byte(node + "-" + strconv.Itoa(i)))
			// 雜湊碰撞時保留先加入的節點
			if _, taken := r.owners[h]; taken {
				continue
			}
			r.keys = append(r.keys, h)
			r.owners[h] = node
		}
	}

	slices.Sort(r.keys)
}

// Remove 從雜湊環移除節點。
//
// 該節點的 key 會落到順時針的下一個節點。
func (r *Ring) Remove(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[node]; !ok {
		return
	}
	delete(r.members, node)

	kept := r.keys[:0]
	for _, h := range r.keys {
		if r.owners[h] == node {
			delete(r.owners, h)
			continue
		}
		kept = append(kept, h)
	}
	r.keys = kept
}

// Get 返回 key 所屬的節點；雜湊環為空時返回 ""。
//
// 查找：二分搜尋第一個 >= hash(key) 的虛擬節點，超過最大值則環繞到第一個。
func (r *Ring) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.keys) == 0 {
		return ""
	}
	return r.owners[r.keys[r.search(key)]]
}

// GetN 返回 key 順時針方向的 n 個不同實體節點（用於副本）。
func (r *Ring) GetN(key string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.keys) == 0 || n <= 0 {
		return nil
	}
	if n > len(r.members) {
		n = len(r.members)
	}

	seen := make(map[string]struct{}, n)
	result := make([]string, 0, n)

	start := r.search(key)
	for i := 0; i < len(r.keys) && len(result) < n; i++ {
		node := r.owners[r.keys[(start+i)%len(r.keys)]]
		if _, ok := seen[node]; ok {
			continue
		}
		seen[node] = struct{}{}
		result = append(result, node)
	}

	return result
}

// search 呼叫端需持有讀鎖
func (r *Ring) search(key string) int {
	h := r.hash([]byte(key))
	idx := sort.Search(len(r.keys), func(i int) bool {
		return r.keys[i] >= h
	})
	if idx == len(r.keys) {
		idx = 0
	}
	return idx
}

// Nodes 返回所有實體節點（已排序）。
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]string, 0, len(r.members))
	for node := range r.members {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	return nodes
}

// Distribution 返回每個節點的虛擬節點數量（用於監控分布是否均勻）。
func (r *Ring) Distribution() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dist := make(map[string]int, len(r.members))
	for _, node := range r.owners {
		dist[node]++
	}
	return dist
}
