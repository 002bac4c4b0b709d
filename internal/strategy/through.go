package strategy

import "context"

// WriteThrough 實作 Write-Through 策略。
//
// 寫入時先更新後端，成功後再更新快取，快取中的資料總是已持久化。
// 讀取流程與 Cache-Aside 相同。
//
// 適用：讀多寫少、一致性要求高。
// 不適用：寫入頻繁、對寫入延遲敏感。
type WriteThrough struct {
	cache Cache
	store DataStore
}

// NewWriteThrough 建立 Write-Through 策略。
func NewWriteThrough(cache Cache, store DataStore) *WriteThrough {
	return &WriteThrough{
		cache: cache,
		store: store,
	}
}

// Get 讀取資料。
func (wt *WriteThrough) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := wt.cache.Get(key); ok {
		return value, nil
	}

	value, err := wt.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	wt.cache.Put(key, value)

	return value, nil
}

// Set 寫入資料：更新後端 → 更新快取。
func (wt *WriteThrough) Set(ctx context.Context, key string, value []byte) error {
	if err := wt.store.Set(ctx, key, value); err != nil {
		return err
	}
	wt.cache.Put(key, value)
	return nil
}

// Delete 刪除資料：刪除後端 → 刪除快取。
func (wt *WriteThrough) Delete(ctx context.Context, key string) error {
	if err := wt.store.Delete(ctx, key); err != nil {
		return err
	}
	wt.cache.Remove(key)
	return nil
}
