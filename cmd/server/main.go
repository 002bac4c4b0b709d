// Command server 啟動 LRU 快取服務。
//
// 組裝：
//
//	config → logger → metrics → events hub
//	→ 本地 LRU（單一或分片）→ 後端儲存 → 快取策略
//	→ NATS 失效匯流排（可選）→ HTTP 伺服器
//
// 使用：
//
//	server -config config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-lru-cache/internal/cache"
	"github.com/koopa0/system-design/14-lru-cache/internal/config"
	"github.com/koopa0/system-design/14-lru-cache/internal/events"
	"github.com/koopa0/system-design/14-lru-cache/internal/handler"
	"github.com/koopa0/system-design/14-lru-cache/internal/invalidation"
	"github.com/koopa0/system-design/14-lru-cache/internal/metrics"
	"github.com/koopa0/system-design/14-lru-cache/internal/migrations"
	"github.com/koopa0/system-design/14-lru-cache/internal/storage"
	"github.com/koopa0/system-design/14-lru-cache/internal/strategy"
	"github.com/koopa0/system-design/14-lru-cache/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.AddSource)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := context.Background()

	// 指標
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, "lru")

	// 淘汰事件
	hub := events.NewHub(log)
	defer hub.Stop()

	// 本地快取
	local, capacity, err := buildCache(cfg, m, hub)
	if err != nil {
		return err
	}
	instrumented := cache.NewInstrumented(local, m)

	// 後端儲存
	store, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 快取策略
	strat, err := strategy.New(
		cfg.Cache.Strategy,
		instrumented,
		storage.NewInstrumented(store, m),
		cfg.Cache.FlushInterval,
		log,
	)
	if err != nil {
		return fmt.Errorf("build strategy: %w", err)
	}

	deps := handler.Deps{
		Strategy:      strat,
		Cache:         instrumented,
		Capacity:      capacity,
		Store:         store,
		Events:        http.HandlerFunc(hub.ServeWS),
		Metrics:       metrics.Handler(reg),
		Timeout:       cfg.Backend.Timeout,
		MaxValueBytes: cfg.Server.MaxValueBytes,
		Logger:        log,
	}

	// 跨實例失效（可選）
	if cfg.NATS.Enabled {
		conn, err := invalidation.Connect(cfg.NATS.URL, log)
		if err != nil {
			return err
		}
		bus, err := invalidation.NewBus(conn, cfg.NATS.Subject, instrumented, log, m)
		if err != nil {
			conn.Close()
			return err
		}
		defer func() {
			if err := bus.Close(); err != nil {
				log.Warn("failed to drain nats connection", "error", err)
			}
		}()
		deps.Bus = bus
		log.Info("cross-instance invalidation enabled", "subject", cfg.NATS.Subject, "origin", bus.Origin())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.New(deps).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server",
			"port", cfg.Server.Port,
			"capacity", capacity,
			"shards", cfg.Cache.Shards,
			"strategy", cfg.Cache.Strategy,
			"backend", cfg.Backend.Type,
		)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("failed to shutdown server", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("failed to force close server", "error", closeErr)
			}
		}

		// 請求全部結束後再刷新 write-back 的髒資料
		if wb, ok := strat.(*strategy.WriteBack); ok {
			if err := wb.Stop(ctx); err != nil {
				log.Error("final write-back flush incomplete", "dirty", wb.DirtyCount(), "error", err)
			}
		}
	}

	log.Info("server stopped")
	return nil
}

// buildCache 建立本地 LRU；shards <= 1 時不經過一致性雜湊。
//
// 返回的容量是所有分片容量之和。
func buildCache(cfg *config.Config, m *metrics.Metrics, hub *events.Hub) (cache.Cache, int, error) {
	onEvict := cache.EvictCounter(m, hub.OnEvict)

	if cfg.Cache.Shards <= 1 {
		c, err := cache.NewLRU(cfg.Cache.Capacity, onEvict)
		if err != nil {
			return nil, 0, fmt.Errorf("build cache: %w", err)
		}
		return c, cfg.Cache.Capacity, nil
	}

	s, err := cache.NewSharded(cfg.Cache.Shards, cfg.Cache.VirtualNodes, func(string) (cache.Cache, error) {
		return cache.NewLRU(cfg.Cache.Capacity, onEvict)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("build sharded cache: %w", err)
	}
	return s, cfg.Cache.Capacity * cfg.Cache.Shards, nil
}

// buildStore 依 backend.type 建立後端儲存，返回的 close 函數釋放連線
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Backend.Type {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		store := storage.NewRedis(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		dsn := cfg.PostgresDSN()

		migrator, err := migrations.New(dsn, log)
		if err != nil {
			return nil, nil, err
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close()
			return nil, nil, err
		}
		if err := migrator.Close(); err != nil {
			log.Warn("failed to close migrator", "error", err)
		}

		pgConfig, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("parse postgres config: %w", err)
		}
		pgConfig.MaxConns = cfg.Postgres.MaxConns
		pgConfig.MinConns = cfg.Postgres.MinConns

		pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := storage.NewPostgres(pool)
		if err := store.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, pool.Close, nil

	default:
		return storage.NewMemory(), func() {}, nil
	}
}
