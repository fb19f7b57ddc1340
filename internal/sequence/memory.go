package sequence

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryCounter keeps counters in process memory. Increments are a single
// atomic add, so concurrent callers never observe the same value.
type MemoryCounter struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counters: make(map[string]*atomic.Int64)}
}

func (c *MemoryCounter) slot(name string, create bool) *atomic.Int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.counters[name]
	if !ok && create {
		v = new(atomic.Int64)
		c.counters[name] = v
	}
	return v
}

func (c *MemoryCounter) IncrementSequence(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.slot(name, true).Add(1), nil
}

func (c *MemoryCounter) CurrentSequence(ctx context.Context, name string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	v := c.slot(name, false)
	if v == nil {
		return 0, false, nil
	}
	return v.Load(), true, nil
}

func (c *MemoryCounter) SeedSequence(ctx context.Context, name string, value int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.counters[name]; ok {
		return v.Load(), nil
	}
	v := new(atomic.Int64)
	v.Store(value)
	c.counters[name] = v
	return value, nil
}
