package servicetest

import (
	"context"
	"slices"
	"sync"

	"github.com/stemsi/exstem-timetable/internal/model"
	"github.com/stemsi/exstem-timetable/internal/service"
)

// MemoryCache is a ClassViewCache and ClassUpdateNotifier that records what
// it was asked to do.
type MemoryCache struct {
	mu          sync.Mutex
	views       map[string][]model.ClassSlot
	generations map[string]int64
	Invalidated []string
	Published   []model.ClassUpdate
	// Rejected counts grids not stored because the class changed while they
	// were being built.
	Rejected int
	gets     int
}

var (
	_ service.ClassViewCache      = (*MemoryCache)(nil)
	_ service.ClassUpdateNotifier = (*MemoryCache)(nil)
)

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		views:       map[string][]model.ClassSlot{},
		generations: map[string]int64{},
	}
}

func (c *MemoryCache) Get(_ context.Context, term, className string) ([]model.ClassSlot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	slots, ok := c.views[term+"/"+className]
	return slices.Clone(slots), ok, nil
}

func (c *MemoryCache) Generation(_ context.Context, term, className string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[term+"/"+className], nil
}

func (c *MemoryCache) SetIfGeneration(_ context.Context, term, className string, gen int64, slots []model.ClassSlot) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := term + "/" + className
	if c.generations[key] != gen {
		c.Rejected++
		return false, nil
	}
	c.views[key] = slices.Clone(slots)
	return true, nil
}

func (c *MemoryCache) Invalidate(_ context.Context, term string, classNames []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range classNames {
		key := term + "/" + name
		c.generations[key]++
		delete(c.views, key)
		c.Invalidated = append(c.Invalidated, key)
	}
	return nil
}

func (c *MemoryCache) PublishClassUpdate(_ context.Context, update model.ClassUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Published = append(c.Published, update)
	return nil
}

// Cached reports whether a grid for the class is stored.
func (c *MemoryCache) Cached(term, className string) bool {
	_, ok := c.CachedView(term, className)
	return ok
}

// CachedView returns the stored grid for the class, if any.
func (c *MemoryCache) CachedView(term, className string) ([]model.ClassSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots, ok := c.views[term+"/"+className]
	return slices.Clone(slots), ok
}

// GetCount returns how many times Get was called.
func (c *MemoryCache) GetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}
