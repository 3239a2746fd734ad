package cache

import (
	"context"
	"time"
)

// EvictExpired removes every record past its retention window and returns how many were dropped.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, rec := range c.records {
		if rec.Expired(now) {
			delete(c.records, key)
			evicted++
		}
	}
	return evicted
}

// Run evicts expired records every interval until the context is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.EvictExpired()
		case <-ctx.Done():
			return
		}
	}
}
