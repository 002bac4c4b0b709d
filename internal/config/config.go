// Package config 載入服務設定。
//
// 優先順序（後者覆蓋前者）：
//  1. Default() 的預設值
//  2. YAML 設定檔
//  3. 環境變數（DATABASE_URL、REDIS_ADDR、NATS_URL、LOG_LEVEL）
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koopa0/system-design/14-lru-cache/internal/strategy"
	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// 後端儲存類型
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config 服務設定
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"cache"`
	Backend  BackendConfig  `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP 伺服器設定
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxValueBytes   int64         `yaml:"max_value_bytes"`
}

// CacheConfig 本地 LRU 設定
type CacheConfig struct {
	// Capacity 每個分片的容量
	Capacity      int           `yaml:"capacity"`
	Shards        int           `yaml:"shards"`
	VirtualNodes  int           `yaml:"virtual_nodes"`
	Strategy      string        `yaml:"strategy"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// BackendConfig 後端儲存設定
type BackendConfig struct {
	Type    string        `yaml:"type"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig Redis 設定
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	KeyPrefix    string        `yaml:"key_prefix"`
	TTL          time.Duration `yaml:"ttl"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig PostgreSQL 設定
type PostgresConfig struct {
	// URL 設定時優先於個別欄位
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// NATSConfig 跨實例失效設定
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LogConfig 日誌設定
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Default 返回預設設定：單一分片、記憶體後端、cache-aside。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxValueBytes:   1 << 20,
		},
		Cache: CacheConfig{
			Capacity:      10000,
			Shards:        1,
			VirtualNodes:  150,
			Strategy:      strategy.KindCacheAside,
			FlushInterval: 5 * time.Second,
		},
		Backend: BackendConfig{
			Type:    BackendMemory,
			Timeout: 2 * time.Second,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			KeyPrefix:    "lru:",
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "lru_cache",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Subject: "lru.invalidate",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load 讀取設定檔並套用環境變數。
//
// path 為空時只使用預設值與環境變數。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - 設定檔路徑來自命令列參數
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 以環境變數覆蓋設定
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate 檢查設定，所有問題一次返回
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxValueBytes <= 0 {
		problems = append(problems, "server.max_value_bytes must be positive")
	}
	if c.Cache.Capacity <= 0 {
		problems = append(problems, fmt.Sprintf("cache.capacity must be positive: %d", c.Cache.Capacity))
	}
	if c.Cache.Shards <= 0 {
		problems = append(problems, fmt.Sprintf("cache.shards must be positive: %d", c.Cache.Shards))
	}

	switch c.Cache.Strategy {
	case strategy.KindCacheAside, strategy.KindWriteThrough:
	case strategy.KindWriteBack:
		if c.Cache.FlushInterval <= 0 {
			problems = append(problems, "cache.flush_interval must be positive for write-back")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown cache.strategy %q", c.Cache.Strategy))
	}

	switch c.Backend.Type {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" && c.Postgres.Host == "" {
			problems = append(problems, "postgres.url or postgres.host is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown backend.type %q", c.Backend.Type))
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		problems = append(problems, "nats.url is required when nats is enabled")
	}

	if len(problems) > 0 {
		return apperrors.ErrInvalidConfig.WithDetails(strings.Join(problems, "; "))
	}
	return nil
}

// PostgresDSN 返回 postgres:// 格式的連線字串（pgxpool 與 golang-migrate 共用）
func (c *Config) PostgresDSN() string {
	if c.Postgres.URL != "" {
		return c.Postgres.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:     "/" + c.Postgres.DBName,
		RawQuery: "sslmode=" + c.Postgres.SSLMode,
	}
	return u.String()
}
