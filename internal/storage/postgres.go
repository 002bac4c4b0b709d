package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// Postgres 以 PostgreSQL 作為後端儲存。
//
// 表結構（見 internal/migrations）：
//
//	CREATE TABLE cache_entries (
//	  key        TEXT PRIMARY KEY,
//	  value      BYTEA NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
// 寫入使用 INSERT ... ON CONFLICT DO UPDATE，單一語句完成 upsert。
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres 建立 PostgreSQL 儲存。pool 的生命週期由呼叫端管理。
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Get 取得值；pgx.ErrNoRows 轉為 ErrKeyNotFound
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM cache_entries WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrKeyNotFound
	}
	if err != nil {
		return nil, unavailable("postgres get", err)
	}
	return value, nil
}

// Set 寫入或覆寫值
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO cache_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return unavailable("postgres set", err)
	}
	return nil
}

// Delete 刪除值；key 不存在時不報錯
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return unavailable("postgres delete", err)
	}
	return nil
}

// Ping 檢查連線
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("postgres ping", err)
	}
	return nil
}
