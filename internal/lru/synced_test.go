package lru_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/koopa0/system-design/14-lru-cache/internal/lru"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSynced_InvalidCapacity(t *testing.T) {
	s, err := lru.NewSynced[string, int](0)
	require.ErrorIs(t, err, lru.ErrInvalidCapacity)
	assert.Nil(t, s)
}

// TestSynced_Concurrent 並發讀寫不破壞容量上限（搭配 -race 執行）
func TestSynced_Concurrent(t *testing.T) {
	const (
		capacity   = 64
		workers    = 16
		iterations = 2000
	)

	var evictions atomic.Int64
	s, err := lru.NewSynced(capacity, lru.WithEvictCallback(func(string, int) {
		evictions.Add(1)
	}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("k%d", (w*iterations+i)%(capacity*4))
				switch i % 4 {
				case 0, 1:
					s.Put(key, i)
				case 2:
					s.Get(key)
				default:
					s.Peek(key)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), capacity)
	assert.Len(t, s.Keys(), s.Len())
	assert.Positive(t, evictions.Load())
}

func TestSynced_Operations(t *testing.T) {
	s, err := lru.NewSynced[string, string](2)
	require.NoError(t, err)

	s.Put("a", "A")
	s.Put("b", "B")

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	s.Put("c", "C")
	assert.False(t, s.Contains("b"))
	assert.Equal(t, []string{"c", "a"}, s.Keys())

	k, v, ok := s.Oldest()
	require.True(t, ok)
	assert.Equal(t, "a", k)
	assert.Equal(t, "A", v)

	v, ok = s.Peek("c")
	require.True(t, ok)
	assert.Equal(t, "C", v)

	assert.True(t, s.Remove("c"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.Cap())

	s.Purge()
	assert.Zero(t, s.Len())
}
