package raster

import (
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"
)

// cacheTTL keeps grids for the lifetime of a typical run; the LRU bound is
// what actually evicts.
const cacheTTL = 24 * time.Hour

// LoadFunc loads a grid by path.
type LoadFunc func(path string) (*Grid, error)

// Cache is a process-scoped raster load cache. Each path is opened and read
// at most once per residency: repeated loads return the shared in-memory
// grid, and concurrent loads of the same path are collapsed into a single
// read. Grids are read-only, so sharing them across extractions is safe.
type Cache struct {
	grids    *ccache.Cache[*Grid]
	inflight singleflight.Group
	load     LoadFunc
}

// NewCache creates a cache holding at most maxEntries grids, loading misses
// with load. A nil load falls back to Load.
func NewCache(maxEntries int64, load LoadFunc) *Cache {
	if load == nil {
		load = Load
	}
	return &Cache{
		grids: ccache.New(ccache.Configure[*Grid]().MaxSize(maxEntries).ItemsToPrune(1)),
		load:  load,
	}
}

// Load returns the grid for path, reading the file only on a cache miss.
func (c *Cache) Load(path string) (*Grid, error) {
	if item := c.grids.Get(path); item != nil && !item.Expired() {
		return item.Value(), nil
	}
	v, err, _ := c.inflight.Do(path, func() (interface{}, error) {
		g, err := c.load(path)
		if err != nil {
			return nil, err
		}
		c.grids.Set(path, g, cacheTTL)
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Grid), nil
}
