// Package cache provides a thread-safe tile map implementing tile.Cache with
// byte-capacity eviction of least recently touched tiles.
package cache

import (
	"cmp"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/eak1mov/go-pyramid/tile"
)

// Stats holds cache counters.
type Stats struct {
	Len       int
	SizeBytes int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache owns the tiles of one image layer.
type Cache struct {
	mu       sync.Mutex
	tiles    map[int]*tile.Tile
	capacity int64
	logger   *slog.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type config struct {
	capacity int64
	logger   *slog.Logger
}

type Option func(*config)

// WithCapacity sets the byte budget enforced by Evict. Zero disables eviction.
func WithCapacity(bytes int64) Option {
	return func(c *config) { c.capacity = bytes }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func New(opts ...Option) *Cache {
	config := config{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Cache{
		tiles:    make(map[int]*tile.Tile),
		capacity: config.capacity,
		logger:   config.logger,
	}
}

func (c *Cache) Has(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tiles[index]
	return ok
}

func (c *Cache) Get(index int) (*tile.Tile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tiles[index]
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return t, ok
}

func (c *Cache) GetOrCreate(index int, create func() *tile.Tile) *tile.Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tiles[index]; ok {
		c.hits.Add(1)
		return t
	}
	c.misses.Add(1)
	t := create()
	c.tiles[index] = t
	return t
}

// Delete removes the tile stored under index. It reports whether a tile was
// removed.
func (c *Cache) Delete(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tiles[index]
	delete(c.tiles, index)
	return ok
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tiles)
}

// SizeBytes returns the number of loaded bytes held by all tiles.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeLocked()
}

func (c *Cache) sizeLocked() int64 {
	var size int64
	for _, t := range c.tiles {
		size += t.SizeBytes()
	}
	return size
}

// All returns an iterator over a snapshot of the cached tiles, ordered by
// index.
func (c *Cache) All() iter.Seq2[int, *tile.Tile] {
	c.mu.Lock()
	snapshot := maps.Clone(c.tiles)
	c.mu.Unlock()

	return func(yield func(int, *tile.Tile) bool) {
		for _, index := range slices.Sorted(maps.Keys(snapshot)) {
			if !yield(index, snapshot[index]) {
				return
			}
		}
	}
}

// Evict drops Ready tiles, least recently touched first, until the cache
// fits its capacity. Tiles still loading are never evicted. It returns the
// number of evicted tiles.
func (c *Cache) Evict() int {
	if c.capacity <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeLocked()
	if size <= c.capacity {
		return 0
	}

	candidates := make([]*tile.Tile, 0, len(c.tiles))
	for _, t := range c.tiles {
		if t.State() == tile.Ready {
			candidates = append(candidates, t)
		}
	}
	slices.SortFunc(candidates, func(a, b *tile.Tile) int {
		if d := a.LastTouched().Compare(b.LastTouched()); d != 0 {
			return d
		}
		return cmp.Compare(a.Index, b.Index)
	})

	evicted := 0
	for _, t := range candidates {
		if size <= c.capacity {
			break
		}
		size -= t.SizeBytes()
		delete(c.tiles, t.Index)
		evicted++
	}
	c.evictions.Add(uint64(evicted))
	c.logger.Debug("pyramid: cache eviction", "evicted", evicted, "size", size, "capacity", c.capacity)
	return evicted
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Len:       len(c.tiles),
		SizeBytes: c.sizeLocked(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
