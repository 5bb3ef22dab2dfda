package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryClient is a process-local Client used when no Redis address is
// configured and in tests. Expired keys are dropped lazily on access.
type MemoryClient struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// NewMemoryClient creates an empty in-process cache
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (c *MemoryClient) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.lookup(key)
	if !ok {
		return "", ErrCacheMiss
	}
	return item.value, nil
}

func (c *MemoryClient) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = c.newItem(value, expiration)
	return nil
}

func (c *MemoryClient) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup(key); ok {
		return false, nil
	}
	c.items[key] = c.newItem(value, expiration)
	return true, nil
}

func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

func (c *MemoryClient) Ping(context.Context) error {
	return nil
}

// lookup must be called with mu held
func (c *MemoryClient) lookup(key string) (memoryItem, bool) {
	item, ok := c.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return memoryItem{}, false
	}
	return item, true
}

func (c *MemoryClient) newItem(value interface{}, expiration time.Duration) memoryItem {
	item := memoryItem{value: stringify(value)}
	if expiration > 0 {
		item.expiresAt = c.now().Add(expiration)
	}
	return item
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
