// Package strategy 實作快取與後端儲存之間的同步策略。
//
// 策略：
//  1. Cache-Aside（旁路快取）：最常用
//  2. Write-Through（寫穿透）
//  3. Write-Back（寫回）
//
// 選擇策略的考量：一致性要求與寫入延遲。
package strategy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// DataStore 是後端儲存介面（Redis、PostgreSQL、記憶體）。
//
// key 不存在時 Get 返回 apperrors.ErrKeyNotFound。
type DataStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Cache 是策略需要的本地快取操作。
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte)
	Remove(key string) bool
}

// Strategy 是所有策略的共同介面
type Strategy interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ErrKeyNotFound 同 apperrors.ErrKeyNotFound
var ErrKeyNotFound = apperrors.ErrKeyNotFound

// CacheAside 實作 Cache-Aside 策略。
//
// 讀取流程：
//  1. 查詢快取，命中直接返回
//  2. 未命中：查詢後端 → 寫入快取 → 返回
//
// 同一個 key 的併發未命中以 singleflight 合併，只查詢後端一次（防止快取擊穿）。
//
// 寫入流程（方案 A）：刪除快取 → 更新後端 → 再刪除一次快取。
// 後端失敗時快取已被刪除，下次讀取會重新載入，不會留下舊資料。
//
// 回填與寫入的競爭：
//
//	Get 讀後端（舊值）... Set 刪快取、寫後端 ... Get 回填舊值
//
// 每次刪除快取都遞增 key 的世代，回填時世代已變就不寫入快取。
// 比較世代與寫入快取在同一把鎖內完成。
type CacheAside struct {
	cache Cache
	store DataStore
	group singleflight.Group

	mu   sync.Mutex
	gens generations
}

// NewCacheAside 建立 Cache-Aside 策略。
func NewCacheAside(cache Cache, store DataStore) *CacheAside {
	return &CacheAside{
		cache: cache,
		store: store,
	}
}

// Get 讀取資料。
func (ca *CacheAside) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := ca.cache.Get(key); ok {
		return value, nil
	}

	v, err, _ := ca.group.Do(key, func() (interface{}, error) {
		ca.mu.Lock()
		gen := ca.gens.load(key)
		ca.mu.Unlock()

		value, err := ca.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		ca.mu.Lock()
		if ca.gens.load(key) == gen {
			ca.cache.Put(key, value)
		}
		ca.mu.Unlock()

		return value, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}

// invalidate 刪除快取並遞增世代，讓進行中的回填失效
func (ca *CacheAside) invalidate(key string) {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	ca.gens.bump(key)
	ca.cache.Remove(key)
}

// Set 寫入資料：刪除快取 → 更新後端 → 刪除快取。
//
// 第二次刪除清掉在兩次刪除之間、從後端讀到舊值的回填。
func (ca *CacheAside) Set(ctx context.Context, key string, value []byte) error {
	ca.invalidate(key)
	defer ca.invalidate(key)

	return ca.store.Set(ctx, key, value)
}

// Delete 刪除資料：刪除快取 → 刪除後端 → 刪除快取。
func (ca *CacheAside) Delete(ctx context.Context, key string) error {
	ca.invalidate(key)
	defer ca.invalidate(key)

	return ca.store.Delete(ctx, key)
}

// SetWithCache 寫入資料（方案 B）：更新後端 → 刪除快取。
//
// 風險：刪除快取前有讀取時，快取中可能短暫是舊資料。
func (ca *CacheAside) SetWithCache(ctx context.Context, key string, value []byte) error {
	if err := ca.store.Set(ctx, key, value); err != nil {
		return err
	}
	ca.invalidate(key)
	return nil
}
