package strategy

import (
	"log/slog"
	"time"

	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// 策略名稱（對應設定檔 cache.strategy）
const (
	KindCacheAside   = "cache-aside"
	KindWriteThrough = "write-through"
	KindWriteBack    = "write-back"
)

// New 依名稱建立策略。
//
// flushInterval 只用於 write-back。未知的名稱返回 ErrInvalidConfig。
func New(kind string, cache Cache, store DataStore, flushInterval time.Duration, logger *slog.Logger) (Strategy, error) {
	switch kind {
	case KindCacheAside, "":
		return NewCacheAside(cache, store), nil
	case KindWriteThrough:
		return NewWriteThrough(cache, store), nil
	case KindWriteBack:
		if flushInterval <= 0 {
			return nil, apperrors.ErrInvalidConfig.WithDetails("write-back flush interval must be positive")
		}
		return NewWriteBack(cache, store, flushInterval, logger), nil
	default:
		return nil, apperrors.ErrInvalidConfig.WithDetails("unknown strategy " + kind)
	}
}
