package sequence

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCounterIncrementsAtomically(t *testing.T) {
	addr := os.Getenv("KASIRPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set KASIRPOS_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	counter := NewRedisCounter(addr, os.Getenv("KASIRPOS_TEST_REDIS_PASSWORD"), 0)
	require.NoError(t, counter.Ping(ctx))
	t.Cleanup(func() { _ = counter.Close() })

	name := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() { counter.client.Del(context.Background(), counter.key(name)) })

	seeded, err := counter.SeedSequence(ctx, name, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), seeded)

	again, err := counter.SeedSequence(ctx, name, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(40), again)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := counter.IncrementSequence(ctx, name)
			if err != nil {
				t.Errorf("incr: %v", err)
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	current, exists, err := counter.CurrentSequence(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(40+n), current)
}
