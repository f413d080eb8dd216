// Copyright © 2018 The ELPS authors

package compiler

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache memoizes compiled fragments by content key.
type Cache interface {
	// GetOrCompute returns the cached data for key, calling compute when
	// there is none or force is set.  Failed computations are not cached.
	GetOrCompute(key uuid.UUID, compute func() (*CompiledData, error), force bool) (*CompiledData, error)
}

// MemoryCache is an unbounded Cache.  Concurrent computations of the same
// key are not merged; the last one to finish is kept.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*CompiledData
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[uuid.UUID]*CompiledData)}
}

func (c *MemoryCache) get(key uuid.UUID) (*CompiledData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok
}

func (c *MemoryCache) put(key uuid.UUID, data *CompiledData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[uuid.UUID]*CompiledData)
	}
	c.entries[key] = data
}

// GetOrCompute implements Cache.
func (c *MemoryCache) GetOrCompute(key uuid.UUID, compute func() (*CompiledData, error), force bool) (*CompiledData, error) {
	if !force {
		if data, ok := c.get(key); ok {
			return data, nil
		}
	}
	data, err := compute()
	if err != nil {
		return nil, err
	}
	c.put(key, data)
	return data, nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// LRUCache is a Cache holding at most a fixed number of entries.
type LRUCache struct {
	entries *lru.Cache[uuid.UUID, *CompiledData]
}

// NewLRUCache returns an LRUCache holding at most size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New[uuid.UUID, *CompiledData](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{entries: entries}, nil
}

// GetOrCompute implements Cache.
func (c *LRUCache) GetOrCompute(key uuid.UUID, compute func() (*CompiledData, error), force bool) (*CompiledData, error) {
	if !force {
		if data, ok := c.entries.Get(key); ok {
			return data, nil
		}
	}
	data, err := compute()
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, data)
	return data, nil
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}
