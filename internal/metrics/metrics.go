// Package metrics 提供快取服務的 Prometheus 指標。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 集中管理快取相關的所有指標。
type Metrics struct {
	// 快取
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Puts      prometheus.Counter
	Evictions prometheus.Counter
	Removals  prometheus.Counter
	Entries   prometheus.Gauge

	// 後端儲存
	BackendErrors  *prometheus.CounterVec
	BackendLatency *prometheus.HistogramVec

	// 跨實例失效
	InvalidationsReceived prometheus.Counter
}

// New 在 reg 上註冊指標，名稱前綴為 namespace。
//
// 測試時傳入 prometheus.NewRegistry()，避免重複註冊到全域 registry。
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Total number of cache lookups that found the key",
		}),
		Misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Total number of cache lookups that missed",
		}),
		Puts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puts_total",
			Help:      "Total number of cache writes",
		}),
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Total number of entries evicted because the cache was full",
		}),
		Removals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "removals_total",
			Help:      "Total number of entries removed explicitly or by invalidation",
		}),
		Entries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "Current number of entries held in the cache",
		}),

		BackendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Backing store errors by operation",
		}, []string{"op"}),
		BackendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Backing store latency by operation",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),

		InvalidationsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_received_total",
			Help:      "Invalidation messages received from peer instances",
		}),
	}
}

// RecordLookup 記錄一次查詢的命中或未命中
func (m *Metrics) RecordLookup(hit bool) {
	if hit {
		m.Hits.Inc()
	} else {
		m.Misses.Inc()
	}
}

// RecordBackend 記錄一次後端呼叫的延遲與錯誤
func (m *Metrics) RecordBackend(op string, err error, duration time.Duration) {
	m.BackendLatency.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		m.BackendErrors.WithLabelValues(op).Inc()
	}
}

// Handler 返回 /metrics 端點的 handler
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
