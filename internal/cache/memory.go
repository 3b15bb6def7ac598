package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type memoryEntry struct {
	value     json.RawMessage
	expiresAt time.Time
}

// MemoryCache is an in-process Cache guarded by a RWMutex. Expired entries
// are hidden on read and swept by a background goroutine until Close.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   clock.Clock
	logger  *log.Logger

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewMemoryCache creates a MemoryCache and starts its sweeper. A nil clock
// means the wall clock.
func NewMemoryCache(cleanupInterval time.Duration, clk clock.Clock, logger *log.Logger) *MemoryCache {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = log.Default()
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	c := &MemoryCache{
		entries:     make(map[string]memoryEntry),
		clock:       clk,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go func() {
		ticker := clk.Ticker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.evictExpired()
			case <-c.stopCleanup:
				return
			}
		}
	}()

	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, data any, ttl time.Duration) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Printf("WARN: cache: failed to encode entry %q: %v", key, err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{value: payload, expiresAt: c.clock.Now().Add(ttl)}
	return true
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

func (c *MemoryCache) Clear(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]memoryEntry)
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close stops the sweeper goroutine.
func (c *MemoryCache) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}

func (c *MemoryCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
