package memory

import (
	"context"
	"sync"

	"github.com/tendant/simple-media/pkg/mediastore"
)

// Cache is an in-process mediastore.ListCache for single-instance
// deployments and tests.
type Cache struct {
	mu      sync.RWMutex
	entries map[int64][]mediastore.MediaItem
	gens    map[int64]uint64
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		entries: make(map[int64][]mediastore.MediaItem),
		gens:    make(map[int64]uint64),
	}
}

func (c *Cache) Get(ctx context.Context, ownerID int64) ([]*mediastore.MediaItem, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[ownerID]
	if !ok {
		return nil, false, nil
	}
	items := make([]*mediastore.MediaItem, len(entry))
	for i := range entry {
		item := entry[i]
		items[i] = &item
	}
	return items, true, nil
}

func (c *Cache) Generation(ctx context.Context, ownerID int64) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[ownerID], nil
}

func (c *Cache) Set(ctx context.Context, ownerID int64, gen uint64, items []*mediastore.MediaItem) error {
	entry := make([]mediastore.MediaItem, len(items))
	for i, item := range items {
		entry[i] = *item
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[ownerID] != gen {
		return nil
	}
	c.entries[ownerID] = entry
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, ownerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ownerID)
	c.gens[ownerID]++
	return nil
}

// Len returns the number of cached owners
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
