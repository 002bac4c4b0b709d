package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-lru-cache/internal/migrations"
	"github.com/koopa0/system-design/14-lru-cache/internal/testutils"
	"github.com/koopa0/system-design/14-lru-cache/pkg/logger"
)

func tableExists(t *testing.T, env *testutils.PostgresEnv) bool {
	t.Helper()

	var exists bool
	err := env.Pool.QueryRow(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'cache_entries')`,
	).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestMigrator_UpDown(t *testing.T) {
	env := testutils.SetupPostgres(t)

	m, err := migrations.New(env.DSN, logger.Discard())
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	// SetupPostgres 已執行過 Up
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	assert.True(t, tableExists(t, env))

	// 重複執行沒有變化
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	assert.False(t, tableExists(t, env))

	require.NoError(t, m.Up())
	assert.True(t, tableExists(t, env))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := migrations.New("not-a-url", logger.Discard())
	assert.Error(t, err)
}
