package rhi

import (
	"sync"
	"sync/atomic"
)

// PipelineCache is a name-keyed lookup of previously built pipeline handles.
//
// Pipeline construction is expensive and the result immutable, so a flat
// cache with no eviction covers the expected working set of tens to low
// hundreds of pipelines per process lifetime. Entries live until Clear or
// Close; if memory pressure ever demands eviction, that is a deliberate
// extension, not a defect.
//
// PipelineCache is safe for concurrent use. Get uses a read lock;
// GetOrCreate uses double-check locking so a pipeline is built at most once
// per name even under contention.
type PipelineCache struct {
	mu     sync.RWMutex
	byName map[string]Handle

	// hits and misses are atomic for lock-free reads.
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPipelineCache creates an empty cache.
func NewPipelineCache() *PipelineCache {
	return &PipelineCache{
		byName: make(map[string]Handle),
	}
}

// Get returns the handle cached under name, or (InvalidHandle, false).
func (c *PipelineCache) Get(name string) (Handle, bool) {
	c.mu.RLock()
	h, ok := c.byName[name]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		return h, true
	}
	c.misses.Add(1)
	return InvalidHandle, false
}

// Put stores a handle under name. A duplicate Put for the same name
// replaces the previous handle (last write wins); the cache does not
// release the replaced pipeline, whose handle is still owned by the
// registry.
func (c *PipelineCache) Put(name string, h Handle) {
	c.mu.Lock()
	c.byName[name] = h
	c.mu.Unlock()
}

// GetOrCreate returns the handle cached under name, building and caching it
// on first request. Concurrent callers for the same name observe a single
// build.
func (c *PipelineCache) GetOrCreate(name string, build func() (Handle, error)) (Handle, error) {
	// Fast path: read lock.
	c.mu.RLock()
	if h, ok := c.byName[name]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return h, nil
	}
	c.mu.RUnlock()

	// Slow path: write lock with double-check.
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.byName[name]; ok {
		c.hits.Add(1)
		return h, nil
	}

	h, err := build()
	if err != nil {
		return InvalidHandle, err
	}

	c.byName[name] = h
	c.misses.Add(1)
	return h, nil
}

// Len returns the number of cached pipelines.
func (c *PipelineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// Stats returns the number of cache hits and misses.
func (c *PipelineCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// HitRate returns the cache hit rate in [0, 1], or 0 before any request.
func (c *PipelineCache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Clear removes all entries and resets statistics. It does not release the
// pipelines; their handles remain valid in the registry.
func (c *PipelineCache) Clear() {
	c.mu.Lock()
	c.byName = make(map[string]Handle)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
}
