package storage

import (
	"context"
	"time"

	"github.com/koopa0/system-design/14-lru-cache/internal/metrics"
	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// Store 是後端儲存的完整介面
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
	_ Store = (*Postgres)(nil)
)

// Instrumented 記錄每次後端呼叫的延遲與錯誤。
//
// key 不存在不算錯誤。
type Instrumented struct {
	next    Store
	metrics *metrics.Metrics
}

// NewInstrumented 包裝 next
func NewInstrumented(next Store, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (s *Instrumented) record(op string, start time.Time, err error) {
	if apperrors.IsNotFound(err) {
		err = nil
	}
	s.metrics.RecordBackend(op, err, time.Since(start))
}

// Get 取得值
func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := s.next.Get(ctx, key)
	s.record("get", start, err)
	return value, err
}

// Set 寫入值
func (s *Instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.next.Set(ctx, key, value)
	s.record("set", start, err)
	return err
}

// Delete 刪除值
func (s *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.record("delete", start, err)
	return err
}

// Ping 不計入指標
func (s *Instrumented) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}
