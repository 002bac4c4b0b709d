package strategy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// WriteBack 實作 Write-Back（Write-Behind）策略。
//
// 寫入流程：
//  1. 更新快取
//  2. 標記為髒資料
//  3. 背景定期批量寫入後端
//
// 寫入失敗的 key 保留髒資料標記，下次刷新時重試。
// 髒資料在寫入後端前若被 LRU 淘汰，讀取仍會從髒資料表取得最新值。
//
// 鎖：
//
//	mu      保護 dirty、gens 與「比較後寫入快取」，不在持有時呼叫後端
//	flushMu 讓 Flush 與 Delete 互斥，避免刷新把剛刪除的 key 寫回後端
//
// 代價：程序崩潰時尚未刷新的資料會遺失。Stop 會做最後一次刷新。
type WriteBack struct {
	cache    Cache
	store    DataStore
	logger   *slog.Logger
	interval time.Duration

	mu    sync.Mutex
	dirty map[string][]byte
	gens  generations

	flushMu sync.Mutex

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWriteBack 建立 Write-Back 策略並啟動背景刷新。
func NewWriteBack(cache Cache, store DataStore, flushInterval time.Duration, logger *slog.Logger) *WriteBack {
	wb := &WriteBack{
		cache:    cache,
		store:    store,
		logger:   logger,
		interval: flushInterval,
		dirty:    make(map[string][]byte),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go wb.flushLoop()

	return wb
}

// Get 讀取資料：快取 → 髒資料 → 後端。
//
// 從後端讀到的值只在期間沒有 Set / Delete 時才寫入快取，
// 否則較慢的讀取會用舊值覆蓋新寫入的快取。
func (wb *WriteBack) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := wb.cache.Get(key); ok {
		return value, nil
	}

	wb.mu.Lock()
	if value, ok := wb.dirty[key]; ok {
		wb.cache.Put(key, value)
		wb.mu.Unlock()
		return value, nil
	}
	gen := wb.gens.load(key)
	wb.mu.Unlock()

	value, err := wb.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	wb.mu.Lock()
	defer wb.mu.Unlock()

	if dirty, ok := wb.dirty[key]; ok {
		wb.cache.Put(key, dirty)
		return dirty, nil
	}
	if wb.gens.load(key) == gen {
		wb.cache.Put(key, value)
	}

	return value, nil
}

// Set 更新快取並標記為髒資料，不等待後端。
func (wb *WriteBack) Set(_ context.Context, key string, value []byte) error {
	wb.mu.Lock()
	defer wb.mu.Unlock()

	wb.gens.bump(key)
	wb.cache.Put(key, value)
	wb.dirty[key] = value

	return nil
}

// Delete 立即刪除後端資料。
//
// 持有 flushMu，進行中的刷新不會把 key 寫回去；
// 後端刪除前後各清一次快取，清掉期間讀到舊值的回填。
func (wb *WriteBack) Delete(ctx context.Context, key string) error {
	wb.flushMu.Lock()
	defer wb.flushMu.Unlock()

	wb.mu.Lock()
	wb.gens.bump(key)
	wb.cache.Remove(key)
	delete(wb.dirty, key)
	wb.mu.Unlock()

	err := wb.store.Delete(ctx, key)

	wb.mu.Lock()
	wb.gens.bump(key)
	if _, ok := wb.dirty[key]; !ok {
		wb.cache.Remove(key)
	}
	wb.mu.Unlock()

	return err
}

func (wb *WriteBack) flushLoop() {
	defer close(wb.done)

	ticker := time.NewTicker(wb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), wb.interval)
			if err := wb.Flush(ctx); err != nil {
				wb.logger.Warn("write-back flush incomplete", "error", err)
			}
			cancel()
		case <-wb.stopCh:
			return
		}
	}
}

// Flush 將髒資料寫入後端。
//
// 先在鎖內複製髒資料，寫入後端時不持有 mu，Set 與讀取不會被阻塞。
// 寫入成功且期間值未被改寫的 key 才移除髒資料標記；
// 失敗的 key 保留並在返回的錯誤中計數。
func (wb *WriteBack) Flush(ctx context.Context) error {
	wb.flushMu.Lock()
	defer wb.flushMu.Unlock()

	wb.mu.Lock()
	snapshot := maps.Clone(wb.dirty)
	wb.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	var (
		flushed []string
		failed  int
		lastErr error
	)
	for key, value := range snapshot {
		if err := wb.store.Set(ctx, key, value); err != nil {
			wb.logger.Error("failed to flush key", "key", key, "error", err)
			failed++
			lastErr = err
			continue
		}
		flushed = append(flushed, key)
	}

	wb.mu.Lock()
	for _, key := range flushed {
		if current, ok := wb.dirty[key]; ok && bytes.Equal(current, snapshot[key]) {
			delete(wb.dirty, key)
		}
	}
	wb.mu.Unlock()

	if failed > 0 {
		return fmt.Errorf("flush: %d keys failed: %w", failed, lastErr)
	}
	return nil
}

// Stop 停止背景刷新並做最後一次刷新。可重複呼叫。
func (wb *WriteBack) Stop(ctx context.Context) error {
	wb.stopOnce.Do(func() {
		close(wb.stopCh)
	})
	<-wb.done

	return wb.Flush(ctx)
}

// DirtyCount 返回尚未寫入後端的 key 數量。
func (wb *WriteBack) DirtyCount() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.dirty)
}
