package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-lru-cache/internal/metrics"
	"github.com/koopa0/system-design/14-lru-cache/internal/storage"
	"github.com/koopa0/system-design/14-lru-cache/internal/testutils"
	apperrors "github.com/koopa0/system-design/14-lru-cache/pkg/errors"
)

// testStore 所有後端共用的行為測試
func testStore(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.True(t, errors.Is(err, apperrors.ErrKeyNotFound))
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "user:1", []byte("alice")))

		got, err := store.Get(ctx, "user:1")
		require.NoError(t, err)
		assert.Equal(t, []byte("alice"), got)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "user:2", []byte("bob")))
		require.NoError(t, store.Set(ctx, "user:2", []byte("carol")))

		got, err := store.Get(ctx, "user:2")
		require.NoError(t, err)
		assert.Equal(t, []byte("carol"), got)
	})

	t.Run("empty value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "empty", []byte{}))

		got, err := store.Get(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "user:3", []byte("dave")))
		require.NoError(t, store.Delete(ctx, "user:3"))

		_, err := store.Get(ctx, "user:3")
		assert.True(t, apperrors.IsNotFound(err))

		// 冪等
		assert.NoError(t, store.Delete(ctx, "user:3"))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestMemory(t *testing.T) {
	testStore(t, storage.NewMemory())
}

// TestMemory_CopiesValues 呼叫端修改 slice 不影響儲存內容
func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()

	value := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
	assert.Equal(t, 1, m.Len())
}

func TestRedis(t *testing.T) {
	env := testutils.SetupRedis(t)
	testStore(t, storage.NewRedis(env.Client, "lru:", 0))
}

func TestRedis_PrefixAndTTL(t *testing.T) {
	env := testutils.SetupRedis(t)
	ctx := context.Background()
	store := storage.NewRedis(env.Client, "lru:", time.Minute)

	require.NoError(t, store.Set(ctx, "k", []byte("v")))

	raw, err := env.Client.Get(ctx, "lru:k").Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), raw)

	ttl, err := env.Client.TTL(ctx, "lru:k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedis_Unavailable(t *testing.T) {
	env := testutils.SetupRedis(t)
	store := storage.NewRedis(env.Client, "lru:", 0)
	require.NoError(t, env.Client.Close())

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestPostgres(t *testing.T) {
	env := testutils.SetupPostgres(t)
	testStore(t, storage.NewPostgres(env.Pool))
}

func TestPostgres_UpdatedAt(t *testing.T) {
	env := testutils.SetupPostgres(t)
	ctx := context.Background()
	store := storage.NewPostgres(env.Pool)

	require.NoError(t, store.Set(ctx, "k", []byte("1")))

	var first time.Time
	require.NoError(t, env.Pool.QueryRow(ctx,
		"SELECT updated_at FROM cache_entries WHERE key = $1", "k").Scan(&first))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Set(ctx, "k", []byte("2")))

	var second time.Time
	require.NoError(t, env.Pool.QueryRow(ctx,
		"SELECT updated_at FROM cache_entries WHERE key = $1", "k").Scan(&second))
	assert.True(t, second.After(first))

	env.TruncateEntries(t)
	_, err := store.Get(ctx, "k")
	assert.True(t, apperrors.IsNotFound(err))
}

// failingStore 所有操作都失敗
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, apperrors.ErrBackendUnavailable
}
func (failingStore) Set(context.Context, string, []byte) error {
	return apperrors.ErrBackendUnavailable
}
func (failingStore) Delete(context.Context, string) error { return apperrors.ErrBackendUnavailable }
func (failingStore) Ping(context.Context) error           { return apperrors.ErrBackendUnavailable }

func TestInstrumented(t *testing.T) {
	ctx := context.Background()

	t.Run("not found is not an error", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry(), "test")
		store := storage.NewInstrumented(storage.NewMemory(), m)

		_, err := store.Get(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))
		require.NoError(t, store.Set(ctx, "k", []byte("v")))
		require.NoError(t, store.Delete(ctx, "k"))

		assert.Equal(t, 0.0, testutil.ToFloat64(m.BackendErrors.WithLabelValues("get")))
		assert.Equal(t, 3, testutil.CollectAndCount(m.BackendLatency))
	})

	t.Run("errors counted per op", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry(), "test")
		store := storage.NewInstrumented(failingStore{}, m)

		_, _ = store.Get(ctx, "k")
		_ = store.Set(ctx, "k", nil)
		_ = store.Set(ctx, "k", nil)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendErrors.WithLabelValues("get")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.BackendErrors.WithLabelValues("set")))
		assert.Error(t, store.Ping(ctx))
	})
}
