package instrument

import "sync"

// CacheKey 返回市场对应的缓存键。
func CacheKey(market string) string {
	return "crypto::" + market
}

// Cache 缓存已加载的标的表，条目不过期，由持有者显式清空。
type Cache struct {
	mu     sync.RWMutex
	frames map[string]*Frame
}

// NewCache 创建空缓存。
func NewCache() *Cache {
	return &Cache{frames: make(map[string]*Frame)}
}

// Get 读取缓存条目。
func (c *Cache) Get(key string) (*Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.frames[key]
	return f, ok
}

// Put 写入缓存条目，已存在时覆盖。
func (c *Cache) Put(key string, frame *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames[key] = frame
}

// Clear 清空缓存。
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = make(map[string]*Frame)
}

// Len 返回缓存条目数。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}
